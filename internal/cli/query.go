package cli

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/IvanBrykalov/recomlive/internal/protocol"
)

func (a *app) newQueryCmd() *cobra.Command {
	var (
		addr    string
		timeout time.Duration
		output  string
	)

	cmd := &cobra.Command{
		Use:   "query METHOD DOC_ID [PERSON_ID]",
		Short: "Send one request to a running server",
		Long: `Send one request datagram and print the reply.

RECR requests get no reply; the command returns as soon as the datagram is
sent. PERSON_ID may be omitted for anonymous RECM requests.

Examples:
  recomlive query RECR doc-1 alice
  recomlive query RR doc-2 alice
  recomlive query RECM doc-2
  recomlive query PH "" alice -o json`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildRequest(args)
			if err != nil {
				return err
			}
			reply, err := sendRequest(cmd.Context(), addr, req, timeout)
			if err != nil {
				return err
			}
			return renderReply(cmd.OutOrStdout(), req, reply, output, a.noColor)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "127.0.0.1:25000", "server address")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 2*time.Second, "reply timeout")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text, json")
	return cmd
}

// buildRequest validates args the same way the server will.
func buildRequest(args []string) (protocol.Request, error) {
	m, ok := protocol.ParseMethod(strings.ToUpper(args[0]))
	if !ok {
		return protocol.Request{}, fmt.Errorf("%w: %q", protocol.ErrUnknownMethod, args[0])
	}
	req := protocol.Request{Method: m, DocID: args[1]}
	if len(args) == 3 {
		req.PersonID = args[2]
	}
	if _, err := protocol.Parse(protocol.Encode(req)); err != nil {
		return protocol.Request{}, err
	}
	return req, nil
}

// sendRequest writes req to addr and, if the method expects one, waits for
// the reply. For RECR the returned Reply is zero.
func sendRequest(ctx context.Context, addr string, req protocol.Request, timeout time.Duration) (protocol.Reply, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return protocol.Reply{}, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	if _, err := conn.Write(protocol.Encode(req)); err != nil {
		return protocol.Reply{}, fmt.Errorf("send: %w", err)
	}
	if !req.Method.ExpectsReply() {
		return protocol.Reply{}, nil
	}

	deadline := time.Now().Add(timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return protocol.Reply{}, err
	}
	buf := make([]byte, protocol.MaxDatagram)
	n, err := conn.Read(buf)
	if err != nil {
		return protocol.Reply{}, fmt.Errorf("read reply: %w", err)
	}
	return protocol.ParseReply(buf[:n])
}

type replyJSON struct {
	Request string   `json:"request"`
	Status  string   `json:"status,omitempty"`
	Items   []string `json:"items"`
}

func renderReply(w io.Writer, req protocol.Request, reply protocol.Reply, format string, noColor bool) error {
	switch format {
	case "json":
		items := reply.Items
		if items == nil {
			items = []string{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(replyJSON{Request: req.String(), Status: string(reply.Status), Items: items})
	case "text", "":
	default:
		return fmt.Errorf("unknown output format %q (use text or json)", format)
	}

	if !req.Method.ExpectsReply() {
		_, err := fmt.Fprintln(w, plain(MutedStyle, noColor).Render("sent "+req.String()))
		return err
	}

	status := plain(OKStyle, noColor)
	if reply.Status != protocol.StatusOK {
		status = plain(ErrorStyle, noColor)
	}
	if _, err := fmt.Fprintln(w, status.Render(string(reply.Status))); err != nil {
		return err
	}
	for i, it := range reply.Items {
		idx := plain(MutedStyle, noColor).Render(fmt.Sprintf("%2d.", i+1))
		if _, err := fmt.Fprintf(w, "%s %s\n", idx, plain(ItemStyle, noColor).Render(it)); err != nil {
			return err
		}
	}
	return nil
}
