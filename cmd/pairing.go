package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/pairlink/internal/pairing"
	"github.com/nextlevelbuilder/pairlink/internal/store"
	"github.com/nextlevelbuilder/pairlink/pkg/protocol"
)

func pairingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pairing",
		Short: "Inspect and answer pairing requests (list, watch, decide, cancel)",
	}

	cmd.AddCommand(pairingListCmd())
	cmd.AddCommand(pairingStatusCmd())
	cmd.AddCommand(pairingWatchCmd())
	cmd.AddCommand(pairingDecideCmd())
	cmd.AddCommand(pairingCancelCmd())
	cmd.AddCommand(pairingHistoryCmd())

	return cmd
}

func parseIDArg(arg string) pairing.ID {
	id, err := pairing.ParseID(arg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	return id
}

func pairingListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List live pairing sessions",
		Run: func(cmd *cobra.Command, args []string) {
			resp := mustRPC(protocol.MethodPairingList, nil)

			var result struct {
				Sessions []pairing.View `json:"sessions"`
			}
			if err := decodePayload(resp, &result); err != nil {
				fmt.Printf("Error parsing pairing list: %v\n", err)
				os.Exit(1)
			}
			if len(result.Sessions) == 0 {
				fmt.Println("No live pairing sessions.")
				return
			}
			for _, v := range result.Sessions {
				ago := time.Since(v.CreatedAt).Truncate(time.Second)
				fmt.Printf("  %-6s %-10s %-20s %s  (%s ago)\n", v.ID, v.Role, v.Peer.Name, renderState(v.State), ago)
			}
		},
	}
}

func pairingStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show one live pairing session",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			id := parseIDArg(args[0])
			resp := mustRPC(protocol.MethodPairingStatus, map[string]any{"id": id})

			var v pairing.View
			if err := decodePayload(resp, &v); err != nil {
				fmt.Printf("Error parsing status: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Pairing %s (%s with %s)\n", v.ID, v.Role, v.Peer.Name)
			fmt.Printf("  %s\n", renderState(v.State))
		},
	}
}

func pairingWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <id>",
		Short: "Follow a pairing session until it finishes",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			id := parseIDArg(args[0])
			if err := watchPairing(id); err != nil {
				fmt.Printf("Error: %v\n", err)
				os.Exit(1)
			}
		},
	}
}

func watchPairing(id pairing.ID) error {
	conn, err := dialGateway()
	if err != nil {
		return err
	}
	defer conn.Close()

	final := false
	onEvent := func(msg []byte) {
		if st, done, ok := statusEvent(msg, id); ok {
			fmt.Println(renderState(st))
			final = final || done
		}
	}

	params, _ := json.Marshal(map[string]any{"id": id})
	resp, err := sendRPC(conn, "cli-watch", protocol.MethodPairingSubscribe, params, onEvent)
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("%s", resp.Error.Message)
	}

	for !final {
		conn.SetReadDeadline(time.Time{})
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read event: %w", err)
		}
		onEvent(msg)
	}
	return nil
}

// statusEvent decodes a pairing.status event frame for id.
func statusEvent(msg []byte, id pairing.ID) (st pairing.State, final, ok bool) {
	var ev struct {
		Event   string                        `json:"event"`
		Payload protocol.PairingStatusPayload `json:"payload"`
	}
	if err := json.Unmarshal(msg, &ev); err != nil || ev.Event != protocol.EventPairingStatus {
		return st, false, false
	}
	if ev.Payload.ID != uint64(id) {
		return st, false, false
	}
	if err := json.Unmarshal(ev.Payload.State, &st); err != nil {
		return st, false, false
	}
	return st, ev.Payload.Final, true
}

const rejectOption = "reject"

func pairingDecideCmd() *cobra.Command {
	var (
		accept string
		reject bool
	)
	cmd := &cobra.Command{
		Use:   "decide <id>",
		Short: "Accept or reject a pairing request (interactive without flags)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			id := parseIDArg(args[0])

			choice := accept
			switch {
			case reject:
				choice = rejectOption
			case choice == "":
				choice = decideInteractiveSelect()
				if choice == "" {
					return
				}
			}

			params := map[string]any{"id": id, "decision": protocol.DecisionReject}
			if choice != rejectOption {
				lib, err := uuid.Parse(choice)
				if err != nil {
					fmt.Printf("Error: invalid library id %q\n", choice)
					os.Exit(1)
				}
				params["decision"] = protocol.DecisionAccept
				params["library_id"] = lib
			}

			resp := mustRPC(protocol.MethodPairingDecide, params)
			var result struct {
				State *pairing.State `json:"state"`
			}
			decodePayload(resp, &result)
			if result.State != nil {
				fmt.Printf("Pairing %s: %s\n", id, renderState(*result.State))
			} else {
				fmt.Printf("Pairing %s: %s\n", id, params["decision"])
			}
		},
	}
	cmd.Flags().StringVar(&accept, "accept", "", "accept into the library with this id")
	cmd.Flags().BoolVar(&reject, "reject", false, "reject the request")
	cmd.MarkFlagsMutuallyExclusive("accept", "reject")
	return cmd
}

// decideInteractiveSelect lets the user pick a library, or reject. The
// first library is the default selection.
func decideInteractiveSelect() string {
	resp := mustRPC(protocol.MethodLibrariesList, nil)
	var result struct {
		Libraries []store.LibraryDescriptor `json:"libraries"`
	}
	if err := decodePayload(resp, &result); err != nil {
		fmt.Printf("Error parsing library list: %v\n", err)
		os.Exit(1)
	}
	if len(result.Libraries) == 0 {
		fmt.Println("No libraries available; the request can only be rejected.")
	}

	options := make([]SelectOption[string], 0, len(result.Libraries)+1)
	for _, lib := range result.Libraries {
		options = append(options, SelectOption[string]{Label: "Accept into " + lib.DisplayName, Value: lib.UUID.String()})
	}
	options = append(options, SelectOption[string]{Label: "Reject", Value: rejectOption})

	selected, err := promptSelect("Pair with this device?", "The peer's library is merged into the one you pick", options, 0)
	if err != nil {
		fmt.Println("Cancelled.")
		return ""
	}
	return selected
}

func pairingCancelCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a live pairing session",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			id := parseIDArg(args[0])
			if !yes {
				ok, err := promptConfirm(fmt.Sprintf("Cancel pairing %s?", id), false)
				if err != nil || !ok {
					fmt.Println("Aborted.")
					return
				}
			}
			mustRPC(protocol.MethodPairingCancel, map[string]any{"id": id})
			fmt.Printf("Cancelled pairing %s\n", id)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

func pairingHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show finished pairing attempts",
		Run: func(cmd *cobra.Command, args []string) {
			resp := mustRPC(protocol.MethodPairingHistory, map[string]any{"limit": limit})
			var result struct {
				Records []store.PairingRecord `json:"records"`
			}
			if err := decodePayload(resp, &result); err != nil {
				fmt.Printf("Error parsing history: %v\n", err)
				os.Exit(1)
			}
			if len(result.Records) == 0 {
				fmt.Println("No pairing history.")
				return
			}
			for _, r := range result.Records {
				outcome := r.Outcome
				if r.Cause != "" {
					outcome += " (" + r.Cause + ")"
				}
				fmt.Printf("  %-6s %s  %-10s %-20s %s\n",
					strconv.FormatUint(r.PairingID, 10), r.EndedAt.Local().Format(time.DateTime), r.Role, r.PeerName, outcome)
			}
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum records to show")
	return cmd
}
