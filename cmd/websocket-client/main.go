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

	"github.com/omochice/line-relay/internal/cli"
	"github.com/omochice/line-relay/internal/client/ws"
)

func main() {
	// Parse command-line flags
	serverAddr := flag.String("server", "ws://localhost:8081/", "WebSocket gateway address (e.g., ws://localhost:8081/)")
	logLevel := flag.String("log-level", "warn", "Log level: trace, debug, info, warn, error or disabled")
	flag.Parse()

	factory, err := cli.LoggerFactory(*logLevel)
	if err != nil {
		log.Fatalf("Invalid -log-level: %v", err)
	}
	logger := factory.NewLogger("main")

	c := ws.NewWithLogger(*serverAddr, factory)
	if err := c.Connect(); err != nil {
		log.Fatalf("Failed to connect to gateway: %v", err)
	}
	defer c.Disconnect()
	logger.Infof("Connected to %s", *serverAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			logger.Errorf("Error reading input: %v", err)
		}
	}()

	fmt.Println("Type your messages (or 'quit' to exit):")
	messages := c.Messages()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				logger.Warn("Gateway closed the connection")
				return
			}
			fmt.Println(msg)
		case text, ok := <-lines:
			text = strings.TrimSpace(text)
			if !ok || text == "quit" || text == "exit" {
				logger.Info("Disconnecting from gateway")
				return
			}
			if text == "" {
				continue
			}
			if err := c.Send(text); err != nil {
				logger.Errorf("Failed to send message: %v", err)
			}
		}
	}
}
