// recallctl is a thin HTTP client for the recall service.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const usage = `recallctl - client for the recall memory service

Usage:
  recallctl [-server URL] <command> [args]

Commands:
  add <text>                    add content to memory (-source, -type)
  query <text>                  search memory (-limit, -order)
  delete <id>                   delete one entry
  wipe                          delete everything (asks for -yes)
  stats                         per-store entry counts and health
  health                        service health
  history                       recent queries
  audit                         recent deletions
  analyze                       corpus health report
  consolidate                   run consolidation now
  schedule list                 list tasks (-all)
  schedule add                  create a task (-agent, -cron, -name, -prompt)
  schedule show <id>            task details
  schedule remove <id>          remove a task
  schedule enable <id>          enable a task
  schedule disable <id>         disable a task
  schedule run <id>             run a task now
  schedule history <id>         task execution history
  schedule tick                 evaluate all tasks once
`

func main() {
	server := flag.String("server", "http://localhost:7410", "recall server URL")
	source := flag.String("source", "", "source label for add")
	contentType := flag.String("type", "", "content type for add")
	limit := flag.Int("limit", 5, "result limit for query")
	order := flag.String("order", "relevance", "result order: relevance, date or source")
	all := flag.Bool("all", false, "include disabled tasks in schedule list")
	yes := flag.Bool("yes", false, "confirm destructive operations")
	agentName := flag.String("agent", "", "agent for schedule add")
	cronExpr := flag.String("cron", "", "cron expression for schedule add")
	taskName := flag.String("name", "", "task name for schedule add")
	prompt := flag.String("prompt", "", "agent prompt for schedule add")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	c := &client{base: *server, http: &http.Client{Timeout: 2 * time.Minute}}

	var err error
	switch args[0] {
	case "add":
		err = c.add(strings.Join(args[1:], " "), *source, *contentType)
	case "query":
		err = c.query(strings.Join(args[1:], " "), *limit, *order)
	case "delete":
		err = c.expectArg(args, 1, func(id string) error {
			return c.do(http.MethodDelete, "/api/memory/"+id, nil)
		})
	case "wipe":
		if !*yes {
			err = fmt.Errorf("wipe removes every entry from every store; pass -yes to confirm")
		} else {
			err = c.do(http.MethodDelete, "/api/memory?confirm=true", nil)
		}
	case "stats":
		err = c.do(http.MethodGet, "/api/memory/stats", nil)
	case "health":
		err = c.do(http.MethodGet, "/api/health", nil)
	case "history":
		err = c.do(http.MethodGet, "/api/memory/history", nil)
	case "audit":
		err = c.do(http.MethodGet, "/api/memory/audit", nil)
	case "analyze":
		err = c.do(http.MethodGet, "/api/consolidate/analyze", nil)
	case "consolidate":
		err = c.do(http.MethodPost, "/api/consolidate", nil)
	case "schedule":
		err = c.schedule(args[1:], *all, *agentName, *cronExpr, *taskName, *prompt)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		flag.Usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type client struct {
	base string
	http *http.Client
}

func (c *client) add(text, source, contentType string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("add: text is required")
	}
	md := map[string]string{}
	if source != "" {
		md["source"] = source
	}
	if contentType != "" {
		md["content_type"] = contentType
	}
	return c.do(http.MethodPost, "/api/memory", map[string]interface{}{
		"content":  text,
		"metadata": md,
	})
}

func (c *client) query(text string, limit int, order string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("query: text is required")
	}
	q := url.Values{}
	q.Set("q", text)
	q.Set("limit", fmt.Sprint(limit))
	q.Set("order", order)
	return c.do(http.MethodGet, "/api/memory/query?"+q.Encode(), nil)
}

func (c *client) schedule(args []string, all bool, agent, cron, name, prompt string) error {
	if len(args) == 0 {
		return fmt.Errorf("schedule: subcommand required")
	}
	switch args[0] {
	case "list":
		path := "/api/schedule"
		if all {
			path += "?all=true"
		}
		return c.do(http.MethodGet, path, nil)
	case "add":
		if agent == "" || cron == "" {
			return fmt.Errorf("schedule add: -agent and -cron are required")
		}
		return c.do(http.MethodPost, "/api/schedule", map[string]string{
			"agent":  agent,
			"cron":   cron,
			"name":   name,
			"prompt": prompt,
		})
	case "show":
		return c.expectArg(args, 1, func(id string) error {
			return c.do(http.MethodGet, "/api/schedule/"+id, nil)
		})
	case "remove":
		return c.expectArg(args, 1, func(id string) error {
			return c.do(http.MethodDelete, "/api/schedule/"+id, nil)
		})
	case "enable", "disable", "run":
		action := args[0]
		return c.expectArg(args, 1, func(id string) error {
			return c.do(http.MethodPost, "/api/schedule/"+id+"/"+action, nil)
		})
	case "history":
		return c.expectArg(args, 1, func(id string) error {
			return c.do(http.MethodGet, "/api/schedule/"+id+"/history", nil)
		})
	case "tick":
		return c.do(http.MethodPost, "/api/schedule/tick", nil)
	default:
		return fmt.Errorf("schedule: unknown subcommand %s", args[0])
	}
}

func (c *client) expectArg(args []string, i int, fn func(string) error) error {
	if len(args) <= i {
		return fmt.Errorf("missing argument")
	}
	return fn(args[i])
}

// do sends the request and pretty-prints the JSON response. Non-2xx
// responses become errors carrying the server's message.
func (c *client) do(method, path string, body interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("is the server running at %s? %w", c.base, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s (%d)", e.Error, resp.StatusCode)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, data, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(data))
	}
	return nil
}
