package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/docopt/docopt-go"
	"golang.org/x/term"

	"github.com/bosbase/bosbase-go/bosbase"
)

const BosbaseCtlVersion = "0.1.0"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := `Bosbase live-update control.

The url and token can be set in a yaml config file. Flags override the file.
Use --token=- to read the token from the terminal.

Usage:
    bosbasectl realtime [--config=<config>] [--url=<url>] [--token=<token>]
        [--count=<count>]
        [--query=<query>...]
        <topic>...
    bosbasectl pubsub [--config=<config>] [--url=<url>] [--token=<token>]
        [--count=<count>]
        <topic>...
    bosbasectl publish [--config=<config>] [--url=<url>] [--token=<token>]
        <topic> <data>

Options:
    -h --help            Show this screen.
    --version            Show version.
    --config=<config>    Yaml config file.
    --url=<url>          Backend url.
    --token=<token>      Auth token.
    --count=<count>      Print this many events then exit.
    --query=<query>      Subscription query parameter as key=value.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], BosbaseCtlVersion)
	if err != nil {
		panic(err)
	}

	if realtime_, _ := opts.Bool("realtime"); realtime_ {
		realtime(opts)
	} else if pubsub_, _ := opts.Bool("pubsub"); pubsub_ {
		pubsub(opts)
	} else if publish_, _ := opts.Bool("publish"); publish_ {
		publish(opts)
	}
}

func loadConfig(opts docopt.Opts) *bosbase.Config {
	config := &bosbase.Config{}
	if path, err := opts.String("--config"); err == nil && path != "" {
		config, err = bosbase.LoadConfig(path)
		if err != nil {
			Err.Fatalf("Could not load config (%s).", err)
		}
	}
	if url, err := opts.String("--url"); err == nil && url != "" {
		config.Url = url
	}
	if token, err := opts.String("--token"); err == nil && token != "" {
		if token == "-" {
			token = readToken()
		}
		config.Token = token
	}
	if err := config.Validate(); err != nil {
		Err.Fatalf("Invalid config (%s).", err)
	}
	return config
}

func readToken() string {
	fmt.Fprint(os.Stderr, "Token: ")
	tokenBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		Err.Fatalf("Could not read token (%s).", err)
	}
	return strings.TrimSpace(string(tokenBytes))
}

func newClient(opts docopt.Opts) (context.Context, *bosbase.Client, func()) {
	config := loadConfig(opts)

	cancelCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	client, err := config.NewClient(cancelCtx)
	if err != nil {
		cancel()
		Err.Fatalf("Could not create client (%s).", err)
	}
	if config.Token != "" && !client.AuthStore().IsValid() {
		Err.Printf("The token is expired or malformed. Continuing without auth.")
	}
	return cancelCtx, client, func() {
		// listeners blocked on `cancelCtx` must return before close joins the transports
		cancel()
		client.Close()
	}
}

func messageCount(opts docopt.Opts) int {
	if count, err := opts.Int("--count"); err == nil {
		return count
	}
	return -1
}

func parseQuery(values []string) map[string]any {
	if len(values) == 0 {
		return nil
	}
	query := map[string]any{}
	for _, value := range values {
		k, v, _ := strings.Cut(value, "=")
		query[k] = v
	}
	return query
}

// indented on a terminal, one line per value otherwise
func printJson(value any) {
	var valueBytes []byte
	var err error
	if term.IsTerminal(int(os.Stdout.Fd())) {
		valueBytes, err = json.MarshalIndent(value, "", "  ")
	} else {
		valueBytes, err = json.Marshal(value)
	}
	if err != nil {
		Err.Printf("Could not encode (%s).", err)
		return
	}
	Out.Printf("%s", valueBytes)
}

// listen for push-stream events
func realtime(opts docopt.Opts) {
	topics := opts["<topic>"].([]string)
	var queryValues []string
	if v, ok := opts["--query"].([]string); ok {
		queryValues = v
	}

	cancelCtx, client, closeClient := newClient(opts)
	defer closeClient()

	var options *bosbase.SubscribeOptions
	if query := parseQuery(queryValues); query != nil {
		options = &bosbase.SubscribeOptions{
			Query: query,
		}
	}

	events := make(chan any)
	for _, topic := range topics {
		unsubscribe, err := client.Realtime.Subscribe(topic, func(data any) {
			select {
			case events <- map[string]any{"topic": topic, "data": data}:
			case <-cancelCtx.Done():
			}
		}, options)
		if err != nil {
			Err.Printf("Subscribe %s (%s).", topic, err)
		}
		if unsubscribe != nil {
			defer unsubscribe()
		}
	}
	Err.Printf("Connected (client_id=%s).", client.Realtime.ClientId())

	sink(cancelCtx, events, messageCount(opts))
}

// listen for socket messages
func pubsub(opts docopt.Opts) {
	topics := opts["<topic>"].([]string)

	cancelCtx, client, closeClient := newClient(opts)
	defer closeClient()

	events := make(chan any)
	for _, topic := range topics {
		unsubscribe, err := client.PubSub.Subscribe(topic, func(message *bosbase.PubSubMessage) {
			select {
			case events <- message:
			case <-cancelCtx.Done():
			}
		})
		if err != nil {
			Err.Printf("Subscribe %s (%s).", topic, err)
		}
		if unsubscribe != nil {
			defer unsubscribe()
		}
	}

	sink(cancelCtx, events, messageCount(opts))
}

func firstString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []string:
		if 0 < len(v) {
			return v[0]
		}
	}
	return ""
}

func sink(ctx context.Context, events chan any, count int) {
	for i := 0; count < 0 || i < count; i += 1 {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			printJson(event)
		}
	}
}

// publish one socket message
func publish(opts docopt.Opts) {
	// `<topic>` repeats in the other commands, so docopt may give a list
	topic := firstString(opts["<topic>"])
	dataStr, _ := opts.String("<data>")

	// data that is not json is sent as a string
	var data any
	if err := json.Unmarshal([]byte(dataStr), &data); err != nil {
		data = dataStr
	}

	_, client, closeClient := newClient(opts)
	defer closeClient()

	message, err := client.PubSub.Publish(topic, data)
	if err != nil {
		Err.Fatalf("Publish %s (%s).", topic, err)
	}
	// close writes the queued envelope before the socket closes
	printJson(message)
}
