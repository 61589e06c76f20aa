package node

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/mosaicnetworks/hive/src/wire"
)

// command is an operator input line waiting for the loop to execute it.
type command struct {
	line  string
	reply chan string
}

// Exec runs one operator command in the node loop and returns its output.
// Commands are:
//
//  vote <term>     publish a VoteRequest for term over gossip. The local
//                  consensus state is not affected.
//  submit <text>   append text to the log, when the node is the leader
//  stats           print the node stats
//  peers           list the connected peers
func (n *Node) Exec(line string) string {
	cmd := &command{
		line:  line,
		reply: make(chan string, 1),
	}

	select {
	case n.commandCh <- cmd:
	case <-n.shutdownCh:
		return "node is shut down"
	}

	select {
	case out := <-cmd.reply:
		return out
	case <-n.shutdownCh:
		return "node is shut down"
	}
}

// ReadCommands executes every line read from r and writes the outputs to w.
// It returns when r is exhausted or the node shuts down.
func (n *Node) ReadCommands(r io.Reader, w io.Writer) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if n.getState() == Shutdown {
			return
		}
		out := n.Exec(scanner.Text())
		if out != "" {
			fmt.Fprintln(w, out)
		}
	}
}

func (n *Node) execute(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}

	switch fields[0] {
	case "vote":
		if len(fields) != 2 {
			return "usage: vote <term>"
		}
		term, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return fmt.Sprintf("vote: invalid term %q", fields[1])
		}

		st := n.engine.State()
		vr := &wire.VoteRequest{
			Term:         uint32(term),
			CandidateID:  n.ID(),
			LastLogTerm:  st.LastLogTerm,
			LastLogIndex: st.LastLogIndex,
		}

		id, err := n.publish(vr)
		if err != nil {
			return fmt.Sprintf("vote: %v", err)
		}
		return fmt.Sprintf("published %s", id)

	case "submit":
		text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "submit"))
		if text == "" {
			return "usage: submit <text>"
		}
		if err := n.engine.Submit([]byte(text)); err != nil {
			return fmt.Sprintf("submit: %v", err)
		}
		return fmt.Sprintf("submitted at index %d", n.engine.State().LastLogIndex)

	case "stats":
		n.updateStats()
		stats := n.GetStats()

		keys := make([]string, 0, len(stats))
		for k := range stats {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		lines := make([]string, 0, len(keys))
		for _, k := range keys {
			lines = append(lines, fmt.Sprintf("%s=%s", k, stats[k]))
		}
		return strings.Join(lines, "\n")

	case "peers":
		var lines []string
		for _, id := range n.session.Connected() {
			if p, ok := n.session.Peer(id); ok {
				lines = append(lines, fmt.Sprintf("%s %s", p, p.NetAddr))
			}
		}
		if len(lines) == 0 {
			return "no connected peers"
		}
		return strings.Join(lines, "\n")

	default:
		return fmt.Sprintf("unknown command %q", fields[0])
	}
}
