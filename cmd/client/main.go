package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dllu1/go-chatroom/internal/domain"
)

type chatClient struct {
	serverURL string
	username  string
	http      *http.Client

	conn   *websocket.Conn
	connMu sync.Mutex
	done   chan struct{}
}

func newChatClient(serverURL string) *chatClient {
	return &chatClient{
		serverURL: strings.TrimRight(serverURL, "/"),
		http:      &http.Client{Timeout: 5 * time.Second},
		done:      make(chan struct{}),
	}
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *chatClient) post(endpoint string, body interface{}) (int, *apiResponse, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}

	resp, err := c.http.Post(c.serverURL+endpoint, "application/json", bytes.NewReader(data))
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return resp.StatusCode, &apiResponse{}, nil
	}
	return resp.StatusCode, &parsed, nil
}

func (c *chatClient) checkServer() bool {
	resp, err := c.http.Get(c.serverURL + "/health")
	if err != nil {
		fmt.Printf("[Error] Cannot connect to server at %s\n", c.serverURL)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Printf("[Error] Server returned status %d\n", resp.StatusCode)
		return false
	}
	fmt.Println("[System] Server is reachable")
	return true
}

func (c *chatClient) register(username, password string) bool {
	status, resp, err := c.post("/register", domain.RegisterRequest{Username: username, Password: password})
	if err != nil {
		fmt.Printf("[Error] Request failed: %v\n", err)
		return false
	}

	switch status {
	case http.StatusCreated:
		fmt.Println("[System] Registration successful")
		return true
	case http.StatusConflict:
		fmt.Println("[Error] Username already exists")
		return false
	default:
		if resp.Error != nil {
			fmt.Printf("[Error] %s\n", resp.Error.Message)
		} else {
			fmt.Printf("[Error] Registration failed (status: %d)\n", status)
		}
		return false
	}
}

func (c *chatClient) login(username, password string) bool {
	status, resp, err := c.post("/login", domain.LoginRequest{Username: username, Password: password})
	if err != nil {
		fmt.Printf("[Error] Request failed: %v\n", err)
		return false
	}

	switch status {
	case http.StatusOK:
		fmt.Println("[System] Login successful")
		c.username = username
		return true
	case http.StatusUnauthorized:
		fmt.Println("[Error] Invalid username or password")
		return false
	default:
		if resp.Error != nil {
			fmt.Printf("[Error] %s\n", resp.Error.Message)
		} else {
			fmt.Printf("[Error] Login failed (status: %d)\n", status)
		}
		return false
	}
}

func (c *chatClient) connect() bool {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		fmt.Printf("[Error] Invalid server URL: %v\n", err)
		return false
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"

	fmt.Printf("[System] Connecting to chat as %s...\n", c.username)

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		fmt.Printf("[Error] Connection failed: %v\n", err)
		return false
	}
	c.conn = conn
	fmt.Println("[System] Connected to server")

	go c.readLoop()

	return c.send(domain.EventJoin, domain.JoinPayload{Username: c.username})
}

func (c *chatClient) send(event string, payload interface{}) bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if err := c.conn.WriteJSON(domain.OutEvent{Event: event, Data: payload}); err != nil {
		fmt.Printf("[Error] Send failed: %v\n", err)
		return false
	}
	return true
}

func (c *chatClient) readLoop() {
	defer close(c.done)

	for {
		var env domain.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			fmt.Println("\n[System] Disconnected from server")
			return
		}
		c.handleEvent(&env)
	}
}

func (c *chatClient) handleEvent(env *domain.Envelope) {
	switch env.Event {
	case domain.EventNewMessage:
		var msg domain.MessagePayload
		if json.Unmarshal(env.Data, &msg) == nil {
			c.printMessage(&msg)
		}

	case domain.EventUserJoined, domain.EventUserLeft:
		var p domain.PresencePayload
		if json.Unmarshal(env.Data, &p) == nil && p.Message != "" {
			fmt.Printf("[System] %s\n", p.Message)
		}

	case domain.EventMessageHistory:
		var p domain.MessageHistoryPayload
		if json.Unmarshal(env.Data, &p) == nil && len(p.Messages) > 0 {
			fmt.Println("\n" + strings.Repeat("=", 40))
			fmt.Println("Chat History")
			fmt.Println(strings.Repeat("=", 40))
			for i := range p.Messages {
				c.printMessage(&p.Messages[i])
			}
			fmt.Println(strings.Repeat("=", 40))
		}

	case domain.EventOnlineUsers:
		var p domain.OnlineUsersPayload
		if json.Unmarshal(env.Data, &p) == nil {
			if len(p.Users) > 0 {
				fmt.Printf("[System] Online users (%d): %s\n", len(p.Users), strings.Join(p.Users, ", "))
			} else {
				fmt.Println("[System] You are the only one online")
			}
		}

	case domain.EventError:
		var p domain.ErrorPayload
		if json.Unmarshal(env.Data, &p) == nil {
			fmt.Printf("[Error] %s\n", p.Message)
		}
	}
}

// printMessage shows a message in readable format. Our own messages are
// echoed locally at send time, so the broadcast copy is suppressed.
func (c *chatClient) printMessage(msg *domain.MessagePayload) {
	if msg.Username == c.username {
		return
	}

	timePart := msg.Timestamp
	if parts := strings.Fields(msg.Timestamp); len(parts) == 2 {
		timePart = parts[1]
	}
	fmt.Printf("[%s] %s: %s\n", timePart, msg.Username, msg.Content)
}

func showHelp() {
	fmt.Println("\n" + strings.Repeat("=", 40))
	fmt.Println("Available Commands")
	fmt.Println(strings.Repeat("=", 40))
	fmt.Println("/users    - Show online users")
	fmt.Println("/exit     - Leave chat")
	fmt.Println("/help     - Show this help")
	fmt.Println(strings.Repeat("=", 40))
}

func (c *chatClient) authLoop(stdin *bufio.Scanner) bool {
	for {
		fmt.Println("\n1. Register")
		fmt.Println("2. Login")
		fmt.Println("3. Exit")
		fmt.Print("\nChoose (1-3): ")

		if !stdin.Scan() {
			return false
		}
		choice := strings.TrimSpace(stdin.Text())

		if choice == "3" {
			fmt.Println("\nGoodbye!")
			return false
		}
		if choice != "1" && choice != "2" {
			fmt.Println("\nPlease choose 1, 2, or 3")
			continue
		}

		fmt.Print("Username: ")
		if !stdin.Scan() {
			return false
		}
		username := strings.TrimSpace(stdin.Text())

		fmt.Print("Password: ")
		if !stdin.Scan() {
			return false
		}
		password := strings.TrimSpace(stdin.Text())

		if username == "" || password == "" {
			fmt.Println("\nBoth username and password are required")
			continue
		}

		if choice == "1" && !c.register(username, password) {
			continue
		}

		if c.login(username, password) {
			return true
		}
	}
}

func (c *chatClient) chatLoop(stdin *bufio.Scanner) {
	fmt.Println("\n" + strings.Repeat("=", 50))
	fmt.Printf("Welcome to the chat, %s!\n", c.username)
	fmt.Println("Type /help for commands")
	fmt.Println(strings.Repeat("=", 50))

	input := make(chan string)
	go func() {
		defer close(input)
		for stdin.Scan() {
			input <- stdin.Text()
		}
	}()

	for {
		select {
		case <-c.done:
			return
		case line, ok := <-input:
			if !ok {
				return
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			switch strings.ToLower(line) {
			case "/exit":
				fmt.Println("\n[System] Leaving chat...")
				return
			case "/users":
				c.send(domain.EventGetOnlineUsers, nil)
			case "/help":
				showHelp()
			default:
				// Local echo; the server broadcast copy is suppressed.
				fmt.Printf("[%s] You: %s\n", time.Now().Format("15:04:05"), line)
				c.send(domain.EventSendMessage, domain.SendMessagePayload{Content: line})
			}
		}
	}
}

func main() {
	serverURL := flag.String("server", "http://localhost:5050", "Server URL")
	flag.Parse()

	client := newChatClient(*serverURL)

	fmt.Println("\n" + strings.Repeat("=", 50))
	fmt.Println("Terminal Chat Client")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Server: %s\n", client.serverURL)
	fmt.Println(strings.Repeat("=", 50))

	if !client.checkServer() {
		os.Exit(1)
	}

	stdin := bufio.NewScanner(os.Stdin)

	if !client.authLoop(stdin) {
		return
	}

	if !client.connect() {
		os.Exit(1)
	}

	client.chatLoop(stdin)

	client.conn.Close()
	fmt.Println("\n[System] Disconnected. Goodbye!")
}
