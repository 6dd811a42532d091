// Command client 是一个交互式的命令行会议客户端。
// 标准输入的每一行作为聊天消息发送，/quit 退出，/leave 离开房间，/end 结束会议。
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"vibe-meeting/internal/client"
	"vibe-meeting/internal/domain"
	"vibe-meeting/internal/dto"
)

func main() {
	url := pflag.StringP("url", "u", "ws://localhost:3001/socket", "server websocket url")
	roomID := pflag.StringP("room", "r", "", "room to join (required)")
	username := pflag.StringP("name", "n", "", "display name (required)")
	userID := pflag.String("user-id", "", "user id, generated when empty")
	baseDelay := pflag.Duration("base-delay", client.DefaultBaseDelay, "initial reconnect delay")
	maxDelay := pflag.Duration("max-delay", client.DefaultMaxDelay, "maximum reconnect delay")
	maxAttempts := pflag.Int("max-attempts", client.DefaultMaxAttempts, "reconnect attempts before local fallback")
	verbose := pflag.BoolP("verbose", "v", false, "debug logging")
	pflag.Parse()

	if *roomID == "" || *username == "" {
		fmt.Fprintln(os.Stderr, "--room and --name are required")
		pflag.Usage()
		os.Exit(2)
	}
	if *userID == "" {
		*userID = uuid.NewString()
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetLevel(logrus.WarnLevel)
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	ctrl := client.NewController(client.Config{
		URL:         *url,
		BaseDelay:   *baseDelay,
		MaxDelay:    *maxDelay,
		MaxAttempts: *maxAttempts,
	}, client.NewWebSocketDialer(0))
	ctrl.SetHandlers(printHandlers())

	if err := ctrl.JoinRoom(*roomID, *userID, *username); err != nil {
		logrus.WithError(err).Fatal("Failed to record room identity")
	}
	if err := ctrl.Connect(context.Background()); err != nil {
		fmt.Printf("* 连接失败，稍后自动重连: %v\n", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	lines := make(chan string)
	go readLines(lines)

	for {
		select {
		case <-quit:
			ctrl.Disconnect()
			return
		case line, ok := <-lines:
			if !ok {
				ctrl.Disconnect()
				return
			}
			if !handleLine(ctrl, line, *roomID, *userID, *username) {
				ctrl.Disconnect()
				return
			}
		}
	}
}

func readLines(out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

// handleLine 处理一行输入，返回 false 表示退出
func handleLine(ctrl *client.Controller, line, roomID, userID, username string) bool {
	line = strings.TrimSpace(line)
	var err error
	switch {
	case line == "":
		return true
	case line == "/quit":
		return false
	case line == "/leave":
		err = ctrl.LeaveRoom(roomID, userID)
	case line == "/join":
		err = ctrl.JoinRoom(roomID, userID, username)
	case line == "/end":
		err = ctrl.EndMeeting(roomID, userID)
	case line == "/connect":
		err = ctrl.Connect(context.Background())
	case line == "/status":
		fmt.Printf("* 状态: %s (重连次数 %d)\n", ctrl.Status(), ctrl.Attempts())
	default:
		err = ctrl.SendMessage(dto.SendMessageRequest{
			RoomID: roomID,
			Type:   domain.MessageTypeUser,
			Text:   line,
			Author: username,
			UserID: userID,
		})
	}
	if err != nil {
		fmt.Printf("* 发送失败: %v\n", err)
	}
	return true
}

func printHandlers() client.Handlers {
	return client.Handlers{
		OnStateChange: func(from, to client.State) {
			fmt.Printf("* %s -> %s\n", from, to)
		},
		OnRoomData: func(d dto.RoomData) {
			fmt.Printf("* 已加入房间，%d 位参与者，创建者: %v\n", len(d.Participants), d.IsCreator)
			for _, m := range d.Messages {
				printMessage(m)
			}
		},
		OnMessage: printMessage,
		OnUserJoined: func(p domain.Participant) {
			fmt.Printf("* %s 加入了房间\n", p.Name)
		},
		OnUserLeft: func(u dto.UserLeft) {
			fmt.Printf("* %s 离开了房间\n", u.UserID)
		},
		OnMeetingEnded: func(m dto.MeetingEnded) {
			fmt.Printf("* %s (消息 %d 条，参与者 %d 位)\n", m.Message, m.DeletedMessages, m.DeletedParticipants)
		},
		OnEndMeetingSuccess: func(m dto.MeetingEnded) {
			fmt.Printf("* %s\n", m.Message)
		},
		OnError: func(e dto.ErrorPayload) {
			fmt.Printf("* 错误 [%s]: %s\n", e.Code, e.Message)
		},
		OnCallInvite: func(c dto.CallInvite) {
			fmt.Printf("* %s 发起了语音通话\n", c.CallerName)
		},
	}
}

func printMessage(m domain.Message) {
	ts := m.Time
	if ts == "" {
		ts = m.Timestamp.Local().Format(time.Kitchen)
	}
	fmt.Printf("[%s] %s: %s\n", ts, m.Author, m.Text)
}
