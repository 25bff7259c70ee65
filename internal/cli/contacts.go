package cli

import (
	"github.com/spf13/cobra"

	"github.com/akeating/ccontacts/internal/ccapi"
)

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "Create and upsert contacts",
}

var contactsCreateCmd = &cobra.Command{
	Use:   "create EMAIL",
	Short: "Create a new contact",
	Args:  cobra.ExactArgs(1),
	RunE:  runContactsCreate,
}

var contactsUpsertCmd = &cobra.Command{
	Use:   "upsert EMAIL",
	Short: "Create or update a contact via the sign-up form",
	Args:  cobra.ExactArgs(1),
	RunE:  runContactsUpsert,
}

var (
	contactFirstName string
	contactLastName  string
	contactListIDs   []string
	contactSMS       bool
)

func init() {
	for _, cmd := range []*cobra.Command{contactsCreateCmd, contactsUpsertCmd} {
		cmd.Flags().StringVar(&contactFirstName, "first", "", "First name")
		cmd.Flags().StringVar(&contactLastName, "last", "", "Last name")
		cmd.Flags().StringArrayVar(&contactListIDs, "list", nil, "List ID (repeatable)")
	}
	contactsUpsertCmd.Flags().BoolVar(&contactSMS, "sms", false, "Mark as SMS subscriber")

	contactsCmd.AddCommand(contactsCreateCmd)
	contactsCmd.AddCommand(contactsUpsertCmd)
	rootCmd.AddCommand(contactsCmd)
}

func runContactsCreate(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	req := ccapi.NewContactRequest(args[0], contactFirstName, contactLastName, contactListIDs)
	raw, err := client.CreateContact(cmd.Context(), req)
	if err != nil {
		return err
	}
	return printJSON(raw)
}

func runContactsUpsert(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	req := ccapi.UpsertRequest{
		EmailAddress:    args[0],
		FirstName:       contactFirstName,
		LastName:        contactLastName,
		ListMemberships: contactListIDs,
	}
	if cmd.Flags().Changed("sms") {
		req.SMSSubscriber = &contactSMS
	}

	raw, err := client.UpsertContact(cmd.Context(), req)
	if err != nil {
		return err
	}
	return printJSON(raw)
}
