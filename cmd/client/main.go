package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/omochice/line-relay/internal/chat"
	"github.com/omochice/line-relay/internal/cli"
	"github.com/omochice/line-relay/internal/client"
	"github.com/omochice/line-relay/internal/poll"
)

func main() {
	// Parse command-line flags
	serverAddr := flag.String("server", "localhost:9000", "Server address (e.g., localhost:9000)")
	tick := flag.Duration("tick", 100*time.Millisecond, "Longest wait per reactor update")
	logLevel := flag.String("log-level", "warn", "Log level: trace, debug, info, warn, error or disabled")
	flag.Parse()

	factory, err := cli.LoggerFactory(*logLevel)
	if err != nil {
		log.Fatalf("Invalid -log-level: %v", err)
	}

	c := client.New(client.Config{LoggerFactory: factory})
	if err := c.Connect(*serverAddr); err != nil {
		log.Fatalf("Failed to connect to server: %v", err)
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stdin is read on its own goroutine; the client is only touched here.
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			log.Printf("Error reading input: %v", err)
		}
	}()

	fmt.Println("Type your messages (or 'quit' to exit):")
	for {
		select {
		case <-ctx.Done():
			return
		case text, ok := <-lines:
			text = strings.TrimSpace(text)
			if !ok || text == "quit" || text == "exit" {
				flush(c, *tick)
				log.Println("Disconnected from server")
				return
			}
			if text != "" {
				if err := c.Feed([]byte(text + "\n")); err != nil {
					log.Printf("Failed to send message: %v", err)
				}
			}
		default:
		}

		status, err := c.Update(*tick)
		if err != nil {
			log.Printf("Connection error: %v", err)
		}
		printMessages(c)
		if status == chat.StatusClosed {
			log.Println("Server closed the connection")
			return
		}
	}
}

func printMessages(c *client.Client) {
	for {
		msg, ok := c.PopNext()
		if !ok {
			return
		}
		fmt.Println(msg)
	}
}

// flush drives the client until queued output is written or a second
// passes.
func flush(c *client.Client, tick time.Duration) {
	deadline := time.Now().Add(time.Second)
	for c.Events()&poll.Write != 0 && time.Now().Before(deadline) {
		if status, _ := c.Update(tick); status == chat.StatusClosed {
			return
		}
		printMessages(c)
	}
}
