package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"

	"github.com/davork/chatlink/internal/backend"
	"github.com/davork/chatlink/internal/backend/memory"
	"github.com/davork/chatlink/internal/backend/postgres"
	"github.com/davork/chatlink/internal/backend/remote"
	"github.com/davork/chatlink/internal/config"
	"github.com/davork/chatlink/internal/database"
	"github.com/davork/chatlink/internal/domain"
	"github.com/davork/chatlink/internal/i18n"
	"github.com/davork/chatlink/internal/service"
)

// toastNotifier prints the transient notifications a UI would toast.
type toastNotifier struct{}

func (toastNotifier) Success(title, body string) { fmt.Printf("  [ok] %s: %s\n", title, body) }
func (toastNotifier) Error(title, body string)   { fmt.Printf("  [!!] %s: %s\n", title, body) }

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx := context.Background()

	var (
		auth  backend.Auth
		store backend.Store
		blobs backend.Blobs
	)

	switch cfg.Backend {
	case config.BackendPostgres:
		pool, err := database.Connect(cfg)
		if err != nil {
			log.Fatal(err)
		}
		defer pool.Close()
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			log.Fatal(err)
		}
		pg := postgres.NewStore(ctx, pool)
		defer pg.Close()
		store = pg
		// Auth and blobs stay local; only the directory is shared.
		auth = memory.NewAuth()
		blobs = memory.NewBlobs()

	case config.BackendRemote:
		rAuth := remote.NewAuth(cfg.GatewayURL)
		rStore, err := remote.DialStore(ctx, cfg.GatewayWS, rAuth.Token())
		if err != nil {
			log.Fatal(err)
		}
		defer rStore.Close()
		auth = rAuth
		store = rStore
		blobs = remote.NewBlobs(cfg.GatewayURL, rAuth)

	default:
		auth = memory.NewAuth()
		store = memory.NewStore()
		blobs = memory.NewBlobs()
	}

	p := i18n.Printer(cfg.Locale)
	notifier := toastNotifier{}

	session := service.NewSessionService(auth, store, notifier, p)
	defer session.Close()

	app := &app{
		ctx:           ctx,
		session:       session,
		directory:     service.NewDirectoryService(store),
		conversations: service.NewConversationService(store),
		composer:      service.NewComposer(store, blobs, session, notifier, p),
		chats:         service.NewChatService(store, session, notifier, p),
	}
	app.watchIdentity()

	fmt.Println("chatlink - type 'help' for commands")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		if !app.handle(strings.Fields(scanner.Text())) {
			break
		}
	}
	app.closeView()
}

type app struct {
	ctx           context.Context
	session       *service.SessionService
	directory     *service.DirectoryService
	conversations *service.ConversationService
	composer      *service.Composer
	chats         *service.ChatService

	mu      sync.Mutex
	list    []listEntry
	dirSub  backend.Subscription
	view    *service.ConversationView
	current string
}

type listEntry struct {
	id, name string
}

// watchIdentity keeps a directory subscription open while signed in and
// tears everything down on sign-out.
func (a *app) watchIdentity() {
	a.session.Watch(func(user *domain.User) {
		if user == nil {
			a.closeView()
			a.closeDirectory()
			return
		}
		a.openDirectory()
	})
}

func (a *app) handle(args []string) bool {
	if len(args) == 0 {
		return true
	}
	switch args[0] {
	case "help":
		fmt.Println("register <email> <password> <name> | login <email> <password> | logout")
		fmt.Println("chats | open <n> | close | send <text...> | attach <file> | users")
		fmt.Println("new <private|group|public> <name> [uid...] | quit")
	case "register":
		if len(args) < 4 {
			fmt.Println("usage: register <email> <password> <name>")
			break
		}
		if err := a.session.Register(a.ctx, args[1], args[2], strings.Join(args[3:], " ")); err != nil {
			fmt.Println(" ", err)
		}
	case "login":
		if len(args) != 3 {
			fmt.Println("usage: login <email> <password>")
			break
		}
		if err := a.session.Login(a.ctx, args[1], args[2]); err != nil {
			fmt.Println(" ", err)
		}
	case "logout":
		_ = a.session.Logout(a.ctx)
	case "chats":
		a.printChats()
	case "open":
		if len(args) != 2 {
			fmt.Println("usage: open <n>")
			break
		}
		a.openChat(args[1])
	case "close":
		a.closeView()
	case "send":
		a.composer.SetText(strings.Join(args[1:], " "))
		if err := a.composer.Submit(a.ctx, a.currentChat()); err != nil {
			fmt.Println(" ", err)
		}
	case "attach":
		if len(args) != 2 {
			fmt.Println("usage: attach <file>")
			break
		}
		a.attach(args[1])
	case "users":
		a.printUsers()
	case "new":
		if len(args) < 3 {
			fmt.Println("usage: new <private|group|public> <name> [uid...]")
			break
		}
		a.create(args[1], args[2], args[3:])
	case "quit":
		return false
	default:
		fmt.Println("unknown command, try 'help'")
	}
	return true
}

func (a *app) openDirectory() {
	user := a.session.Current()
	if user == nil {
		return
	}
	a.closeDirectory()

	sub, err := a.directory.Watch(user.UID, func(chats []domain.Chat) {
		a.mu.Lock()
		a.list = a.list[:0]
		for _, c := range chats {
			a.list = append(a.list, listEntry{id: c.ID, name: c.Name})
		}
		a.mu.Unlock()
	})
	if err != nil {
		fmt.Println(" ", err)
		return
	}
	a.mu.Lock()
	a.dirSub = sub
	a.mu.Unlock()
}

func (a *app) closeDirectory() {
	a.mu.Lock()
	sub := a.dirSub
	a.dirSub = nil
	a.list = nil
	a.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}
}

func (a *app) printChats() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.list) == 0 {
		fmt.Println("  no chats")
		return
	}
	for i, e := range a.list {
		fmt.Printf("  %d. %s (%s)\n", i+1, e.name, e.id)
	}
}

func (a *app) openChat(arg string) {
	user := a.session.Current()
	if user == nil {
		fmt.Println("  sign in first")
		return
	}

	chatID := arg
	a.mu.Lock()
	var n int
	if _, err := fmt.Sscanf(arg, "%d", &n); err == nil && n >= 1 && n <= len(a.list) {
		chatID = a.list[n-1].id
	}
	a.mu.Unlock()

	a.closeView()
	view, err := a.conversations.Open(user.UID, chatID, service.ConversationCallbacks{
		Chat: func(c *domain.Chat) {
			fmt.Printf("  -- %s (%s) --\n", c.Name, c.Type)
		},
		Messages: func(msgs []domain.Message) {
			for _, m := range msgs {
				line := m.Text
				if m.ImageURL != "" {
					line += " [" + m.ImageURL + "]"
				}
				fmt.Printf("  <%s> %s\n", m.SenderName, line)
			}
		},
		Closed: func(reason error) {
			fmt.Println(" ", reason)
		},
	})
	if err != nil {
		fmt.Println(" ", err)
		return
	}
	a.mu.Lock()
	a.view = view
	a.current = chatID
	a.mu.Unlock()
}

func (a *app) closeView() {
	a.mu.Lock()
	view := a.view
	a.view = nil
	a.current = ""
	a.mu.Unlock()
	if view != nil {
		view.Close()
	}
}

func (a *app) currentChat() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *app) attach(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Println(" ", err)
		return
	}
	att := &service.Attachment{Data: data, ContentType: http.DetectContentType(data)}
	if err := a.composer.Attach(att); err != nil {
		fmt.Println(" ", err)
	}
}

func (a *app) printUsers() {
	users, err := a.chats.Participants(a.ctx)
	if err != nil {
		fmt.Println(" ", err)
		return
	}
	for _, u := range users {
		fmt.Printf("  %s  %s\n", u.UID, u.DisplayName)
	}
}

func (a *app) create(chatType, name string, uids []string) {
	id, err := a.chats.Create(a.ctx, service.CreateChatInput{
		Name:           name,
		Type:           domain.ChatType(chatType),
		ParticipantIDs: uids,
	})
	if err != nil {
		fmt.Println(" ", err)
		return
	}
	a.openChat(id)
}
