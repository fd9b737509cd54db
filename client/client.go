package main

import (
	"bufio"
	"collab-lab/domain/event"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddress string `env:"COLLAB_SERVER_ADDR,default=localhost:5000"`
	RoomID        string `env:"COLLAB_ROOM_ID,default=lobby"`
	UserName      string `env:"COLLAB_USER_NAME,required=true"`
	LogLevel      string `env:"LOG_LEVEL,default=INFO"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run joins the configured room, prints every event and turns stdin lines
// into events. Plain text is a chat message; see parseLine for commands.
func run() (int, error) {
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	target := url.URL{
		Scheme:   "ws",
		Host:     config.ServerAddress,
		Path:     "/ws",
		RawQuery: url.Values{"roomId": {config.RoomID}, "userName": {config.UserName}}.Encode(),
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target.String(), nil)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to %s: %w", target.String(), err)
	}
	defer func() {
		log.Info("Closing connection...")
		_ = conn.Close()
	}()
	log.Info(fmt.Sprintf(">>> Joined room %s as %s (Ctrl+C to quit)", config.RoomID, config.UserName))

	received := make(chan error, 1)
	go func() { received <- readEvents(conn, os.Stdout) }()
	go writeEvents(ctx, conn, os.Stdin)

	select {
	case <-ctx.Done():
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		return exitOK, nil
	case err := <-received:
		if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			return exitOK, nil
		}
		return exitRuntime, fmt.Errorf("connection lost: %w", err)
	}
}

func readEvents(conn *websocket.Conn, out io.Writer) error {
	for {
		var envelope event.Envelope
		if err := conn.ReadJSON(&envelope); err != nil {
			return err
		}
		fmt.Fprintln(out, render(envelope))
	}
}

func writeEvents(ctx context.Context, conn *websocket.Conn, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		name, data, ok := parseLine(scanner.Text())
		if !ok {
			continue
		}
		if err := conn.WriteJSON(map[string]any{"event": name, "data": data}); err != nil {
			return
		}
	}
}

// parseLine understands:
//
//	/run <lang>           run the room buffer
//	/code <lang> <text>   replace the buffer
//	/get <lang>           fetch the buffer
//	/files                list the room files
//	/search <query>       search the chat
//	/quit                 leave the room
func parseLine(line string) (string, any, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", nil, false
	}
	if !strings.HasPrefix(line, "/") {
		return "messageSend", map[string]string{"message": line}, true
	}

	command, rest, _ := strings.Cut(line[1:], " ")
	switch command {
	case "run":
		return "executeCode", map[string]string{"lang": rest}, rest != ""
	case "code":
		lang, code, _ := strings.Cut(rest, " ")
		return "changedCode", map[string]string{"lang": lang, "code": code}, lang != ""
	case "get":
		return "codeRequest", map[string]string{"lang": rest}, rest != ""
	case "files":
		return "filesList", map[string]string{}, true
	case "search":
		return "searchMessages", map[string]string{"query": rest}, rest != ""
	case "quit":
		return "explicitDisconnect", map[string]string{}, true
	default:
		return "", nil, false
	}
}

func render(envelope event.Envelope) string {
	switch envelope.Event {
	case "newMessage":
		var msg event.NewMessage
		if err := json.Unmarshal(envelope.Data, &msg); err == nil {
			return fmt.Sprintf("[%s] %s: %s", msg.SentAt.Local().Format(time.TimeOnly), color.Cyan.Render(msg.User), msg.Message)
		}
	case "codeOutput":
		var out event.CodeOutput
		if err := json.Unmarshal(envelope.Data, &out); err == nil {
			text := out.Stdout + out.Stderr
			if out.Error != nil {
				return color.Red.Render("error: "+*out.Error) + "\n" + text
			}
			return color.Green.Render("output:") + "\n" + text
		}
	case "changedCode":
		var change event.ChangedCode
		if err := json.Unmarshal(envelope.Data, &change); err == nil {
			return fmt.Sprintf("%s edited %s:\n%s", color.Cyan.Render(change.UserName), change.Lang, change.Code)
		}
	case "invalidRequest":
		return color.Yellow.Render(fmt.Sprintf("%s: %s", envelope.Event, string(envelope.Data)))
	}
	return fmt.Sprintf("%s %s", color.Gray.Render(envelope.Event), string(envelope.Data))
}
