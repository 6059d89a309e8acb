package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/spf13/cobra"
	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/client"
	"github.com/theapemachine/a2a-sdk/pkg/signing"
)

var (
	jsonFlag     bool
	keyFileFlag  string
	jkuFlag      string
	inFileFlag   string
	outFileFlag  string
	jwksFileFlag string
	allowJKUFlag []string

	cardCmd = &cobra.Command{
		Use:   "card",
		Short: "Fetch, sign, and verify agent cards",
		Long:  longCard,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cardFetchCmd = &cobra.Command{
		Use:   "fetch",
		Short: "Fetch an agent's card from its well-known endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			card, err := client.ResolveCard(cmd.Context(), urlFlag, nil)

			if err != nil {
				return err
			}

			if jsonFlag {
				return writeCard(card, outFileFlag)
			}

			fmt.Println(card.String())

			return nil
		},
	}

	cardSignCmd = &cobra.Command{
		Use:   "sign",
		Short: "Sign an agent card with a private JWK",
		RunE: func(cmd *cobra.Command, args []string) error {
			card, err := readCard(inFileFlag)

			if err != nil {
				return err
			}

			buf, err := os.ReadFile(keyFileFlag)

			if err != nil {
				return fmt.Errorf("failed to read key file: %w", err)
			}

			key, err := jwk.ParseKey(buf)

			if err != nil {
				return fmt.Errorf("failed to parse key file: %w", err)
			}

			signer := signing.NewSigner(key)

			if jkuFlag != "" {
				signer = signer.WithJKU(jkuFlag)
			}

			if err := signer.SignCard(card); err != nil {
				return err
			}

			return writeCard(card, outFileFlag)
		},
	}

	cardVerifyCmd = &cobra.Command{
		Use:   "verify",
		Short: "Verify the signatures on an agent card",
		RunE: func(cmd *cobra.Command, args []string) error {
			card, err := readCard(inFileFlag)

			if err != nil {
				return err
			}

			provider := signing.JWKSProvider(allowJKUFlag...)

			if jwksFileFlag != "" {
				buf, err := os.ReadFile(jwksFileFlag)

				if err != nil {
					return fmt.Errorf("failed to read JWKS file: %w", err)
				}

				keys, err := jwk.Parse(buf)

				if err != nil {
					return fmt.Errorf("failed to parse JWKS file: %w", err)
				}

				provider = signing.StaticKeyProvider(keys)
			}

			if err := signing.NewVerifier(provider).Verify(cmd.Context(), card); err != nil {
				return err
			}

			log.Info("card signature verified", "agent", card.Name, "signatures", len(card.Signatures))

			return nil
		},
	}
)

func init() {
	rootCmd.AddCommand(cardCmd)
	cardCmd.AddCommand(cardFetchCmd)
	cardCmd.AddCommand(cardSignCmd)
	cardCmd.AddCommand(cardVerifyCmd)

	cardFetchCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print the raw card JSON instead of the summary")
	cardFetchCmd.Flags().StringVarP(&outFileFlag, "out", "o", "", "Write the card to this file instead of stdout")

	cardSignCmd.Flags().StringVarP(&keyFileFlag, "key", "k", "", "Private key in JWK format")
	cardSignCmd.Flags().StringVarP(&inFileFlag, "in", "i", "", "Card JSON to sign")
	cardSignCmd.Flags().StringVarP(&outFileFlag, "out", "o", "", "Write the signed card to this file instead of stdout")
	cardSignCmd.Flags().StringVar(&jkuFlag, "jku", "", "JWKS URL to advertise in the signature header")
	_ = cardSignCmd.MarkFlagRequired("key")
	_ = cardSignCmd.MarkFlagRequired("in")

	cardVerifyCmd.Flags().StringVarP(&inFileFlag, "in", "i", "", "Signed card JSON to verify")
	cardVerifyCmd.Flags().StringVar(&jwksFileFlag, "jwks", "", "Verify against this local JWKS file")
	cardVerifyCmd.Flags().StringSliceVar(&allowJKUFlag, "allow-jku", nil, "JWKS URLs the card's signatures may reference")
	_ = cardVerifyCmd.MarkFlagRequired("in")
}

func readCard(path string) (*a2a.AgentCard, error) {
	buf, err := os.ReadFile(path)

	if err != nil {
		return nil, fmt.Errorf("failed to read card file: %w", err)
	}

	var card a2a.AgentCard

	if err := json.Unmarshal(buf, &card); err != nil {
		return nil, fmt.Errorf("failed to parse card file: %w", err)
	}

	return &card, nil
}

func writeCard(card *a2a.AgentCard, path string) error {
	buf, err := json.MarshalIndent(card, "", "  ")

	if err != nil {
		return err
	}

	if path == "" {
		fmt.Println(string(buf))
		return nil
	}

	return os.WriteFile(path, buf, 0644)
}

var longCard = `
Work with agent cards: the self-describing documents agents publish at
/.well-known/agent-card.json.

Examples:
  # Show an agent's card
  a2a-sdk card fetch --url http://localhost:3210

  # Sign a card, advertising where the public keys live
  a2a-sdk card sign --in card.json --key private.jwk \
    --jku https://agent.example.com/.well-known/jwks.json --out signed.json

  # Verify against a pinned JWKS file
  a2a-sdk card verify --in signed.json --jwks public.jwks

  # Verify by fetching the advertised jku, pinned to an allowlist
  a2a-sdk card verify --in signed.json \
    --allow-jku https://agent.example.com/.well-known/jwks.json
`
