// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/commands-run/desktop-agent/conversation"
	"github.com/commands-run/desktop-agent/relay"
	"github.com/commands-run/desktop-agent/sessionmachine"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect sessionable peer devices",
}

var sessionListCmd = &cobra.Command{
	Use:   "ls",
	Short: "List devices this owner can open a session with",
	Long: `A running desktop agent keeps its active sessions in memory only,
by design (§5 of the session model): there is no on-disk session
registry for this command to read. Instead, ls reports the relay's
view of accessible devices, which is the superset any new session can
be opened against.`,
	RunE: runSessionList,
}

var sessionOpenCmd = &cobra.Command{
	Use:   "open <device-id> <prompt>",
	Short: "Open a session with a device, send one prompt, and print the agent's response",
	Long: `open drives the session lifecycle end to end: it runs the
four-round handshake against the target device, encrypts and sends the
prompt, then streams the agent's turn back over the session's event
channel until a result or a terminal error arrives. A send that finds
the relay no longer recognizes the session reconnects automatically,
exactly once, before the command gives up.`,
	Args: cobra.ExactArgs(2),
	RunE: runSessionOpen,
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionOpenCmd)
}

// cliHandler renders conversation events to stdout and signals command
// completion on done once a terminal event (result, agent error,
// session ended, or session error) arrives.
type cliHandler struct {
	done chan error
}

func newCLIHandler() *cliHandler {
	return &cliHandler{done: make(chan error, 1)}
}

func (h *cliHandler) OnReconnecting() {
	fmt.Println("session.reconnecting: relay no longer recognizes the session, retrying with a fresh handshake")
}

func (h *cliHandler) OnProgress(ev *conversation.InboundEvent) {
	fmt.Printf("progress: %s\n", ev.Status)
}

func (h *cliHandler) OnResult(ev *conversation.InboundEvent) {
	fmt.Printf("result: %s\n", ev.Result)
	if ev.Turns > 0 || ev.CostUSD > 0 {
		fmt.Printf("  turns=%d cost_usd=%.4f model=%s\n", ev.Turns, ev.CostUSD, ev.Model)
	}
	h.finish(nil)
}

func (h *cliHandler) OnAgentError(ev *conversation.InboundEvent) {
	h.finish(fmt.Errorf("agent error: %s", ev.ErrorText))
}

func (h *cliHandler) OnSessionEnded(reason string) {
	h.finish(fmt.Errorf("session ended: %s", reason))
}

func (h *cliHandler) OnSessionError(err error) {
	h.finish(err)
}

func (h *cliHandler) OnUnknown(ev *conversation.InboundEvent) {
	fmt.Printf("unrecognized payload: %s\n", string(ev.Raw))
}

func (h *cliHandler) finish(err error) {
	select {
	case h.done <- err:
	default:
	}
}

func runSessionOpen(cmd *cobra.Command, args []string) error {
	deviceID, prompt := args[0], args[1]
	ctx := cmd.Context()

	v, err := openVault()
	if err != nil {
		return err
	}
	secrets, err := v.Restore()
	if err != nil {
		return fmt.Errorf("restore credentials: %w", err)
	}

	tokens := &staticTokenSource{accessToken: secrets.AccessToken}
	client := relay.NewClient(relay.Config{AllowedOrigins: appConfig.Relay.OriginAllowlist}, tokens, nil)

	manager := sessionmachine.NewManager(sessionmachine.RoleClient, sessionmachine.Config{
		MaxAge:      appConfig.Session.MaxAge,
		IdleTimeout: appConfig.Session.IdleTimeout,
		MaxMessages: appConfig.Session.MaxMessages,
	})
	defer manager.Close()

	backoff := sessionmachine.BackoffPolicy{
		InitialDelay:   appConfig.Backoff.InitialDelay,
		MaxDelay:       appConfig.Backoff.MaxDelay,
		JitterFraction: appConfig.Backoff.JitterFraction,
		MaxFailures:    appConfig.Backoff.MaxFailures,
	}

	handler := newCLIHandler()
	conv := conversation.New(client, appConfig.Relay.BaseURL, manager, backoff, handler, log)

	conversationID := sessionmachine.NewSessionID()
	if err := conv.Open(ctx, deviceID, conversationID); err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer conv.Close()

	if err := conv.Send(ctx, prompt); err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	select {
	case err := <-handler.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func runSessionList(cmd *cobra.Command, args []string) error {
	v, err := openVault()
	if err != nil {
		return err
	}
	secrets, err := v.Restore()
	if err != nil {
		return fmt.Errorf("restore credentials: %w", err)
	}

	tokens := &staticTokenSource{accessToken: secrets.AccessToken}
	client := relay.NewClient(relay.Config{AllowedOrigins: appConfig.Relay.OriginAllowlist}, tokens, nil)

	devices, err := client.ListDevices(context.Background(), appConfig.Relay.BaseURL)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}

	if len(devices) == 0 {
		fmt.Println("No accessible devices.")
		return nil
	}
	fmt.Printf("%-40s %s\n", "DEVICE ID", "STATUS")
	for _, d := range devices {
		fmt.Printf("%-40s %s\n", d.DeviceID, d.Status)
	}
	return nil
}

// staticTokenSource satisfies relay.TokenSource for CLI invocations,
// which run once and never need a reactive refresh mid-command.
type staticTokenSource struct {
	accessToken string
}

func (s *staticTokenSource) AccessToken() string { return s.accessToken }

func (s *staticTokenSource) Refresh(ctx context.Context) (string, error) {
	return "", fmt.Errorf("token refresh is not available outside the running agent; run 'desktopctl identity rotate' or sign in again")
}
