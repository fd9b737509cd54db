package main

import (
	"collab-lab/domain"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

type Config struct {
	ServerURL string        `env:"COLLAB_SERVER_URL,default=http://localhost:5000"`
	Timeout   time.Duration `env:"INSPECTOR_TIMEOUT,default=5s"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut io.Writer) int {
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		fmt.Fprintf(errOut, "Inspector config error: %v\n", err)
		return exitConfig
	}

	root := rootCmd(config)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)
	if err := root.Execute(); err != nil {
		return exitRuntime
	}
	return exitOK
}

func rootCmd(config Config) *cobra.Command {
	client := inspector{baseURL: strings.TrimRight(config.ServerURL, "/"), http: http.DefaultClient}
	root := &cobra.Command{
		Use:          "inspector",
		Short:        "Inspect the rooms of a running collab server",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&client.baseURL, "server", client.baseURL, "Server base url")
	root.AddCommand(roomsCmd(&client, config.Timeout), filesCmd(&client, config.Timeout))
	return root
}

func roomsCmd(client *inspector, timeout time.Duration) *cobra.Command {
	return &cobra.Command{
		Use:   "rooms",
		Short: "List live rooms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			rooms, err := client.rooms(ctx)
			if err != nil {
				return err
			}
			renderRooms(cmd.OutOrStdout(), rooms)
			return nil
		},
	}
}

func filesCmd(client *inspector, timeout time.Duration) *cobra.Command {
	return &cobra.Command{
		Use:   "files <roomId>",
		Short: "List the files uploaded to a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			files, err := client.files(ctx, args[0])
			if err != nil {
				return err
			}
			renderFiles(cmd.OutOrStdout(), args[0], files)
			return nil
		},
	}
}

type inspector struct {
	baseURL string
	http    *http.Client
}

func (i inspector) rooms(ctx context.Context) ([]domain.RoomSummary, error) {
	var rooms []domain.RoomSummary
	return rooms, i.get(ctx, "/api/rooms", &rooms)
}

func (i inspector) files(ctx context.Context, room string) ([]domain.FileInfo, error) {
	var files []domain.FileInfo
	return files, i.get(ctx, "/api/rooms/"+room+"/files", &files)
}

func (i inspector) get(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := i.http.Do(req)
	if err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned %s: %s", path, resp.Status, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

func newTable(out io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func renderRooms(out io.Writer, rooms []domain.RoomSummary) {
	if len(rooms) == 0 {
		fmt.Fprintln(out, color.Yellow.Render("No room yet"))
		return
	}
	table := newTable(out, []string{"Room", "Members", "Strokes", "Languages", "Created"})
	for _, room := range rooms {
		languages := make([]string, 0, len(room.Languages))
		for _, lang := range room.Languages {
			languages = append(languages, string(lang))
		}
		members := fmt.Sprint(room.Members)
		if room.Members == 0 {
			members = color.Gray.Render(members)
		} else {
			members = color.Green.Render(members)
		}
		table.Append([]string{
			string(room.ID),
			members,
			fmt.Sprint(room.WhiteboardEvents),
			strings.Join(languages, ","),
			room.CreatedAt.Local().Format("15:04:05"),
		})
	}
	table.Render()
}

func renderFiles(out io.Writer, room string, files []domain.FileInfo) {
	if len(files) == 0 {
		fmt.Fprintln(out, color.Yellow.Render("No file in room "+room))
		return
	}
	table := newTable(out, []string{"File", "Size", "Type", "Modified"})
	for _, file := range files {
		table.Append([]string{
			file.Name,
			fmt.Sprint(file.Size),
			file.MimeType,
			file.ModTime.Local().Format(time.DateTime),
		})
	}
	table.Render()
}
