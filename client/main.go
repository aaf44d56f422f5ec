package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var (
	gatewayAddr string
	apiAddr     string
	userID      string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "client",
		Short:        "Interactive client for the chat gateway",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&gatewayAddr, "addr", "localhost:8080", "gateway service address")
	root.PersistentFlags().StringVar(&apiAddr, "api", "http://localhost:8081", "api service address")
	root.PersistentFlags().StringVar(&userID, "user", "user1", "user id to log in as (development login)")

	var peer string
	chat := &cobra.Command{
		Use:   "chat",
		Short: "Connect to the gateway and exchange messages",
		Long: `Lines typed are sent as chat messages to the current peer.
Commands: /to <user> switches peer, /invite <invitationId> sends a game
invite, /quit exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(peer)
		},
	}
	chat.Flags().StringVar(&peer, "to", "", "user id to message")

	var limit int
	history := &cobra.Command{
		Use:   "history [partner]",
		Short: "Print conversations, or the history with one partner",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/conversations"
			if len(args) == 1 {
				path = fmt.Sprintf("/conversations/%s?limit=%d", url.PathEscape(args[0]), limit)
			}
			return runGet(cmd.OutOrStdout(), path)
		},
	}
	history.Flags().IntVar(&limit, "limit", 20, "messages to fetch")

	root.AddCommand(chat, history)
	return root
}

type loginResponse struct {
	Data struct {
		Token string `json:"token"`
	} `json:"data"`
}

func login(apiAddr, userID string) (string, error) {
	reqBody, _ := json.Marshal(map[string]string{"user_id": userID})
	resp, err := http.Post(apiAddr+"/login", "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("login failed: %s", string(body))
	}

	var out loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Data.Token, nil
}

func runGet(w io.Writer, path string) error {
	token, err := login(apiAddr, userID)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodGet, apiAddr+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var pretty bytes.Buffer
	body, _ := io.ReadAll(resp.Body)
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		_, err = fmt.Fprintf(w, "%s\n", body)
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", pretty.Bytes())
	return err
}

func runChat(peer string) error {
	log.Printf("Logging in as %s...", userID)
	token, err := login(apiAddr, userID)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	u := url.URL{Scheme: "ws", Host: gatewayAddr, Path: "/ws"}
	log.Printf("connecting to %s", u.String())

	header := http.Header{}
	header.Add("Authorization", "Bearer "+token)

	c, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer c.Close()

	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("read:", err)
				return
			}
			fmt.Printf("\r%s\n> ", render(message))
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	quit := make(chan struct{})

	go func() {
		defer close(quit)
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Print("> ")
		for scanner.Scan() {
			in := parseInput(scanner.Text(), peer)
			switch {
			case in.quit:
				return
			case in.err != nil:
				fmt.Printf("%v\n> ", in.err)
				continue
			case in.peer != peer:
				peer = in.peer
				fmt.Printf("now talking to %s\n> ", peer)
				continue
			case in.frame == nil:
				fmt.Print("> ")
				continue
			}

			if err := c.WriteJSON(in.frame); err != nil {
				log.Println("write:", err)
				return
			}
			fmt.Print("> ")
		}
	}()

	select {
	case <-done:
		return nil
	case <-interrupt:
	case <-quit:
	}

	// Cleanly close the connection by sending a close message and then
	// waiting (with timeout) for the server to close the connection.
	err = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return fmt.Errorf("write close: %w", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
	}
	return nil
}
