package main

import (
	"context"
	"flag"
	"log"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/betbot/pairsbot/internal/dashboard"
)

func main() {
	addr := flag.String("addr", ":3000", "pairsbot 看板地址（host:port 或 URL）")
	flag.Parse()

	client := dashboard.NewClient(*addr, 3*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan tea.Msg, 64)
	go streamEvents(ctx, client.WebSocketURL(), events)

	p := tea.NewProgram(newModel(client, events), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("运行程序失败: %v", err)
	}
}
