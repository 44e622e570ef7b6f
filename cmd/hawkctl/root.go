package main

import (
	"errors"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rhuss/hawkgate/pkg/auth"
)

// credentialFlags are the Hawk credentials shared by the signing commands.
type credentialFlags struct {
	id        string
	key       string
	keyFile   string
	algorithm string
}

func (f *credentialFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.id, "id", os.Getenv("HAWKGATE_ID"), "credential id (env HAWKGATE_ID)")
	cmd.Flags().StringVar(&f.key, "key", os.Getenv("HAWKGATE_KEY"), "credential key (env HAWKGATE_KEY)")
	cmd.Flags().StringVar(&f.keyFile, "key-file", "", "read the credential key from a file")
	cmd.Flags().StringVar(&f.algorithm, "algorithm", "sha256", "MAC algorithm: sha256 or sha1")
}

func (f *credentialFlags) credentials() (*auth.Credentials, error) {
	key := f.key
	if f.keyFile != "" {
		data, err := os.ReadFile(f.keyFile)
		if err != nil {
			return nil, err
		}
		key = strings.TrimSpace(string(data))
	}
	if f.id == "" || key == "" {
		return nil, errors.New("--id and --key (or --key-file) are required")
	}
	return &auth.Credentials{ID: f.id, Key: key, Algorithm: f.algorithm}, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "hawkctl",
		Short:         "Client tooling for the hawkgate authentication gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newBewitCmd(),
		newHeaderCmd(),
		newRequestCmd(),
		newOperatorTokenCmd(),
	)
	return root
}
