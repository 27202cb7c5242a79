package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zentity-id/go-zentity-server/keywrap"
	"github.com/zentity-id/go-zentity-server/types"
)

var (
	envelopeKeyHex string
	envelopeFormat string
	envelopeOut    string
	secretID       string
	secretType     string
)

func init() {
	sealCmd.Flags().StringVarP(&envelopeKeyHex, "key", "k", "", "hex-encoded 32 byte DEK (required)")
	sealCmd.Flags().StringVarP(&envelopeFormat, "format", "f", "compact", "envelope format: compact or verbose")
	sealCmd.Flags().StringVarP(&envelopeOut, "output", "o", "", "output file (default is stdout)")
	sealCmd.Flags().StringVar(&secretID, "secret-id", "", "secret id bound into the AAD (required)")
	sealCmd.Flags().StringVar(&secretType, "secret-type", "", "secret type bound into the AAD (required)")
	sealCmd.MarkFlagRequired("key")
	sealCmd.MarkFlagRequired("secret-id")
	sealCmd.MarkFlagRequired("secret-type")

	openCmd.Flags().StringVarP(&envelopeKeyHex, "key", "k", "", "hex-encoded 32 byte DEK (required)")
	openCmd.Flags().StringVarP(&envelopeFormat, "format", "f", "compact", "envelope format: compact or verbose")
	openCmd.Flags().StringVarP(&envelopeOut, "output", "o", "", "output file (default is stdout)")
	openCmd.Flags().StringVar(&secretID, "secret-id", "", "secret id bound into the AAD (required)")
	openCmd.Flags().StringVar(&secretType, "secret-type", "", "secret type bound into the AAD (required)")
	openCmd.MarkFlagRequired("key")
	openCmd.MarkFlagRequired("secret-id")
	openCmd.MarkFlagRequired("secret-type")

	envelopeCmd.AddCommand(sealCmd)
	envelopeCmd.AddCommand(openCmd)
	rootCmd.AddCommand(envelopeCmd)
}

var envelopeCmd = &cobra.Command{
	Use:   "envelope",
	Short: "Seal or open secret envelopes with a supplied DEK",
	Long:  "Break-glass inspection of secret envelopes. Operates on local files with a hex DEK; nothing touches the database.",
}

func readDek() []byte {
	dek, err := hex.DecodeString(envelopeKeyHex)
	check(err)
	if len(dek) != 32 {
		check(fmt.Errorf("expected a 32 byte key, got %d bytes", len(dek)))
	}
	return dek
}

func writeOut(data []byte) {
	if envelopeOut != "" {
		check(os.WriteFile(envelopeOut, data, 0600))
		fmt.Printf("Output file: %s\n", envelopeOut)
		return
	}
	os.Stdout.Write(data)
}

var sealCmd = &cobra.Command{
	Use:   "seal <plaintext-file>",
	Short: "Encrypt a local file into a secret envelope",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		plaintext, err := os.ReadFile(args[0])
		check(err)
		blob, sErr := keywrap.Encrypt(secretID, secretType, plaintext, readDek(), types.EnvelopeFormat(envelopeFormat))
		check(sErr)
		writeOut(blob)
	},
}

var openCmd = &cobra.Command{
	Use:   "open <envelope-file>",
	Short: "Decrypt a secret envelope file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		blob, err := os.ReadFile(args[0])
		check(err)
		plaintext, oErr := keywrap.Decrypt(secretID, secretType, blob, readDek(), types.EnvelopeFormat(envelopeFormat))
		check(oErr)
		writeOut(plaintext)
	},
}
