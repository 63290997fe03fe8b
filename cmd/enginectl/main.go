// Command enginectl is an operator CLI issuing spec.md §6's four RPCs
// against a running engine daemon over its Unix domain socket. Grounded
// on cmd/synnergy/main.go's cobra subcommand-per-operation tree (testnet
// start / tokens transfer there, query / exec / commit / validate here).
package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	var socketPath string

	root := &cobra.Command{Use: "enginectl"}
	root.PersistentFlags().StringVar(&socketPath, "socket", "/tmp/execution-engine.sock", "engine daemon's Unix domain socket")

	root.AddCommand(queryCmd(&socketPath))
	root.AddCommand(execCmd(&socketPath))
	root.AddCommand(commitCmd(&socketPath))
	root.AddCommand(validateCmd(&socketPath))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// unixClient dials socketPath for every request regardless of the
// request URL's host (the daemon has no real hostname, only a socket).
func unixClient(socketPath string) *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
	}
}

func post(socketPath, path string, body any) (map[string]any, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	resp, err := unixClient(socketPath).Post("http://unix"+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w (body: %s)", err, string(data))
	}
	return out, nil
}

func printResult(out map[string]any, err error) error {
	if err != nil {
		return err
	}
	enc, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(enc))
	return nil
}

func queryCmd(socketPath *string) *cobra.Command {
	var stateHash, baseKey string
	var path []string
	cmd := &cobra.Command{
		Use:   "query",
		Short: "resolve a base key and path against a state root",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printResult(post(*socketPath, "/query", map[string]any{
				"state_hash": stateHash,
				"base_key":   baseKey,
				"path":       path,
			}))
		},
	}
	cmd.Flags().StringVar(&stateHash, "state-hash", "", "32-byte state root, hex")
	cmd.Flags().StringVar(&baseKey, "base-key", "", "canonical Key serialization, hex")
	cmd.Flags().StringSliceVar(&path, "path", nil, "named-key path segments")
	return cmd
}

func execCmd(socketPath *string) *cobra.Command {
	var parentHash, deploysFile string
	cmd := &cobra.Command{
		Use:   "exec",
		Short: "run a block of deploys against a prestate root",
		RunE: func(cmd *cobra.Command, args []string) error {
			deploys, err := readJSONArray(deploysFile)
			if err != nil {
				return fmt.Errorf("read deploys file: %w", err)
			}
			return printResult(post(*socketPath, "/exec", map[string]any{
				"parent_state_hash": parentHash,
				"deploys":           deploys,
			}))
		},
	}
	cmd.Flags().StringVar(&parentHash, "parent-state-hash", "", "32-byte prestate root, hex")
	cmd.Flags().StringVar(&deploysFile, "deploys", "", "path to a JSON array of deploy wire records")
	return cmd
}

func commitCmd(socketPath *string) *cobra.Command {
	var prestateHash, effectsFile string
	cmd := &cobra.Command{
		Use:   "commit",
		Short: "apply a precomputed effect set to a prestate root",
		RunE: func(cmd *cobra.Command, args []string) error {
			effects, err := readJSONArray(effectsFile)
			if err != nil {
				return fmt.Errorf("read effects file: %w", err)
			}
			return printResult(post(*socketPath, "/commit", map[string]any{
				"prestate_hash": prestateHash,
				"effects":       effects,
			}))
		},
	}
	cmd.Flags().StringVar(&prestateHash, "prestate-hash", "", "32-byte prestate root, hex")
	cmd.Flags().StringVar(&effectsFile, "effects", "", "path to a JSON array of transform entries")
	return cmd
}

func validateCmd(socketPath *string) *cobra.Command {
	var paymentFile, sessionFile string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "check payment and session Wasm against the allowed import set",
		RunE: func(cmd *cobra.Command, args []string) error {
			payment, session, err := readCodeFiles(paymentFile, sessionFile)
			if err != nil {
				return err
			}
			return printResult(post(*socketPath, "/validate", map[string]any{
				"payment_code": payment,
				"session_code": session,
			}))
		},
	}
	cmd.Flags().StringVar(&paymentFile, "payment", "", "path to payment Wasm (optional)")
	cmd.Flags().StringVar(&sessionFile, "session", "", "path to session Wasm")
	return cmd
}

func readJSONArray(path string) ([]map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func readCodeFiles(paymentFile, sessionFile string) (paymentHex, sessionHex string, err error) {
	if paymentFile != "" {
		raw, rerr := os.ReadFile(paymentFile)
		if rerr != nil {
			return "", "", fmt.Errorf("read payment file: %w", rerr)
		}
		paymentHex = hex.EncodeToString(raw)
	}
	raw, rerr := os.ReadFile(sessionFile)
	if rerr != nil {
		return "", "", fmt.Errorf("read session file: %w", rerr)
	}
	sessionHex = hex.EncodeToString(raw)
	return paymentHex, sessionHex, nil
}
