// Command chatroom reimplements tinycore's
// example/chatroom/chatroom.cpp: a "/" route answering "Hello World!"
// and a "/chat" WebSocket route broadcasting every message to every
// other connected user, tagged with the sender's "name" query
// argument (default "anonymous"). Matches §8 scenario 6 (WebSocket
// echo) generalized to a fan-out broadcast instead of a single-peer
// echo.
package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/duskline/netasync/cliopts"
	"github.com/duskline/netasync/httpserver"
	"github.com/duskline/netasync/reactor"
	"github.com/duskline/netasync/web"
	"github.com/duskline/netasync/websocket"
)

type helloHandler struct {
	web.BaseHandler
}

func (*helloHandler) Get(ctx *web.Context) {
	ctx.WriteString("Hello World!")
}

// chatRoom is the shared registry ChatUser.OnOpen/OnClose broadcast
// entry/exit notices through, matching chatroom.cpp's
// static std::set<ChatUser::SelfType> _users.
type chatRoom struct {
	mu    sync.Mutex
	users map[*ChatUser]struct{}
}

func newChatRoom() *chatRoom { return &chatRoom{users: make(map[*ChatUser]struct{})} }

func (r *chatRoom) broadcast(except *ChatUser, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for u := range r.users {
		if u == except {
			continue
		}
		u.conn.WriteMessage([]byte(message), false)
	}
}

func (r *chatRoom) add(u *ChatUser)    { r.mu.Lock(); r.users[u] = struct{}{}; r.mu.Unlock() }
func (r *chatRoom) remove(u *ChatUser) { r.mu.Lock(); delete(r.users, u); r.mu.Unlock() }

// ChatUser is the websocket.Handler for one connected chat peer,
// matching chatroom.cpp's ChatUser : public WebSocketHandler.
type ChatUser struct {
	websocket.BaseHandler
	room *chatRoom
	name string
	conn websocket.Conn
}

func (u *ChatUser) OnOpen(string) {
	u.room.broadcast(nil, fmt.Sprintf("User (%s) enter chat room", u.name))
}

func (u *ChatUser) OnMessage(data []byte, binary bool) {
	u.room.broadcast(u, fmt.Sprintf("User (%s) says:%s", u.name, string(data)))
}

func (u *ChatUser) OnClose() {
	u.room.remove(u)
	u.room.broadcast(nil, fmt.Sprintf("User (%s) leave chat room", u.name))
}

// chatHandler is the web.Handler mounted at "/chat"; its sole job is
// to read the "name" query argument and hand the request off to
// websocket.Upgrade, matching the spec's "detaches from
// HttpServer/HttpClient" WebSocket handoff.
type chatHandler struct {
	web.BaseHandler
	room *chatRoom
}

func (h *chatHandler) Get(ctx *web.Context) {
	name, _ := ctx.Request.Argument("name", "anonymous", true)
	user := &ChatUser{room: h.room, name: name}
	conn, err := websocket.Upgrade(ctx, user)
	if err != nil {
		ctx.SendError(400, err)
		return
	}
	user.conn = conn
	h.room.add(user)
}

func main() {
	opts := cliopts.New("chatroom", "1.0.0")
	addr := opts.DefineString("addr", "127.0.0.1:3080", "address to listen on")
	if err := opts.Parse(os.Args[1:]); err != nil {
		switch err {
		case cliopts.ErrHelp:
			fmt.Println(opts.Usage())
			os.Exit(cliopts.HelpExitCode)
		case cliopts.ErrVersion:
			fmt.Println(opts.Version())
			os.Exit(cliopts.VersionExitCode)
		default:
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	room := newChatRoom()
	app := web.NewApplication("", nil)
	helloSpec, err := web.NewURLSpec("/", func() web.Handler { return &helloHandler{} }, "index", nil)
	if err != nil {
		panic(err)
	}
	chatSpec, err := web.NewURLSpec("/chat", func() web.Handler { return &chatHandler{room: room} }, "chat", nil)
	if err != nil {
		panic(err)
	}
	if err := app.AddHandlers(".*$", []*web.URLSpec{helloSpec, chatSpec}); err != nil {
		panic(err)
	}

	r := reactor.New()
	srv := httpserver.New(r, app)
	if err := srv.Listen(*addr); err != nil {
		panic(err)
	}
	fmt.Printf("chatroom listening on %s\n", *addr)
	r.Start()
}
