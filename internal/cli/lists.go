package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/akeating/ccontacts/internal/ccapi"
)

var listsCmd = &cobra.Command{
	Use:   "lists",
	Short: "List contact lists",
	Args:  cobra.NoArgs,
	RunE:  runLists,
}

var listsCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a new contact list",
	Args:  cobra.ExactArgs(1),
	RunE:  runListsCreate,
}

var (
	listsSavePath    string
	listsBrief       bool
	listsFavorite    bool
	listsDescription string
)

func init() {
	listsCmd.Flags().StringVar(&listsSavePath, "save", "", "Also write the raw response to this file")
	listsCmd.Flags().BoolVar(&listsBrief, "brief", false, "Print only list ids and names")

	listsCreateCmd.Flags().BoolVar(&listsFavorite, "favorite", false, "Mark the list as a favorite")
	listsCreateCmd.Flags().StringVar(&listsDescription, "description", "", "List description")

	listsCmd.AddCommand(listsCreateCmd)
	rootCmd.AddCommand(listsCmd)
}

func runLists(cmd *cobra.Command, _ []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	raw, err := client.ListContactLists(cmd.Context())
	if err != nil {
		return err
	}

	if listsSavePath != "" {
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err == nil {
			raw = buf.Bytes()
		}
		if err := os.WriteFile(listsSavePath, raw, 0o644); err != nil {
			return fmt.Errorf("save lists to %s: %w", listsSavePath, err)
		}
		log.Info().Str("path", listsSavePath).Msg("saved lists")
	}

	if listsBrief {
		printBriefLists(raw)
		return nil
	}
	return printJSON(raw)
}

// printBriefLists renders "list_id  name" pairs from the raw response.
func printBriefLists(raw []byte) {
	gjson.GetBytes(raw, "lists").ForEach(func(_, list gjson.Result) bool {
		fmt.Printf("%s  %s\n", list.Get("list_id").String(), list.Get("name").String())
		return true
	})
}

func runListsCreate(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	raw, err := client.CreateList(cmd.Context(), ccapi.ListRequest{
		Name:        args[0],
		Favorite:    listsFavorite,
		Description: listsDescription,
	})
	if err != nil {
		return err
	}
	return printJSON(raw)
}
