package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var outputFile string

func init() {
	keysCmd.Flags().StringVarP(&outputFile, "output", "o", "", "output file (default is stdout)")
	rootCmd.AddCommand(keysCmd)
}

// keysCmd generates the ed25519 keypair the server signs recovery context tokens with
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Generate ed25519 server signing keys",
	Long:  "Generate the ed25519 keypair used to sign recovery context tokens",
	Run: func(cmd *cobra.Command, args []string) {
		// Generate ed25519 keys
		public, private, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			panic(err)
		}
		keysJson := map[string]interface{}{
			"type":       "zentity_server_keys_ed25519",
			"publicKey":  base64.StdEncoding.EncodeToString(public),
			"privateKey": base64.StdEncoding.EncodeToString(private),
			"created":    time.Now().UnixMilli(),
		}
		fileBytes, err := json.MarshalIndent(keysJson, "", "  ")
		if outputFile != "" {
			// save keys to disk in a file
			// fail if file already exists
			if _, err := os.Stat(outputFile); !errors.Is(err, os.ErrNotExist) {
				fmt.Printf("File already exists: %s\n", outputFile)
				os.Exit(1)
			}
			check(err)
			err = os.WriteFile(outputFile, fileBytes, 0644)
			check(err)
			fmt.Printf("Output file: %s\n", outputFile)
		} else {
			fmt.Printf("\n%s\n", string(fileBytes))
		}
	},
}
