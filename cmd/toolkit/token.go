package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/viviendahub/go-viviendahub/pkg/tokens"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Offers invitation token utilities",
	Long:  `Offers invitation token utilities`,
	Args:  cobra.ExactArgs(1),
}

var tokenNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Generates an invitation token and its storable hash",
	Long:  `Generates an invitation token and its storable hash`,
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		plaintext, hash, err := tokens.NewInvitationToken()
		if err != nil {
			return fmt.Errorf("generating token: %s", err)
		}
		fmt.Printf("Token: %s\n", plaintext)
		fmt.Printf("Hash:  %s\n", hash)
		return nil
	},
}

var tokenHashCmd = &cobra.Command{
	Use:   "hash <token>",
	Short: "Prints the storable hash of a plaintext token",
	Long:  `Prints the storable hash of a plaintext token`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(tokens.HashToken(args[0]))
		return nil
	},
}

var tokenCheckCmd = &cobra.Command{
	Use:   "check <token>",
	Short: "Validates the format of a plaintext token",
	Long:  `Validates the format of a plaintext token`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := tokens.ValidateTokenFormat(args[0]); err != nil {
			return err
		}
		fmt.Println("token format is valid")
		return nil
	},
}
