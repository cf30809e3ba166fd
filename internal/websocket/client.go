package websocket

import (
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"moexbot/pkg/utils"
)

const (
	// Дедлайн записи одного фрейма
	writeWait = 10 * time.Second

	// Сколько ждем pong, прежде чем считать соединение мертвым
	pongWait = 60 * time.Second

	// Ping уходит заметно раньше дедлайна pong
	pingPeriod = (pongWait * 9) / 10

	// Поток односторонний (сервер -> клиент), клиент не шлет ничего,
	// кроме управляющих фреймов. Жесткий лимит отсекает мусор.
	maxMessageSize = 1024

	// Буфер исходящих. Скринер рассылает оценки всего списка инструментов
	// одним сообщением, буфер должен вмещать всплеск из нескольких
	// таких рассылок подряд.
	sendQueueSize = 256
)

// originPolicy ограничивает браузерные подключения к потоку событий.
// Список берется из ALLOWED_ORIGINS (через запятую). Пустое значение
// или "*" разрешает всех - удобно для локальной панели на другом порту.
type originPolicy struct {
	allowed  map[string]struct{}
	allowAll bool
}

// Инициализируется при загрузке пакета, дальше только чтение.
var origins = parseOriginPolicy(os.Getenv("ALLOWED_ORIGINS"))

func parseOriginPolicy(raw string) *originPolicy {
	p := &originPolicy{allowed: make(map[string]struct{})}
	if raw == "" || raw == "*" {
		p.allowAll = true
		return p
	}
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			p.allowed[origin] = struct{}{}
		}
	}
	return p
}

// allow пропускает запрос по заголовку Origin. Пустой заголовок - это
// не браузер (curl, мониторинг), такие подключения не ограничиваем.
func (p *originPolicy) allow(origin string) bool {
	if origin == "" || p.allowAll {
		return true
	}
	_, ok := p.allowed[origin]
	return ok
}

// Чтение маленькое (от клиента идут только pong), запись с запасом
// под батч скринера.
var upgrader = websocket.Upgrader{
	ReadBufferSize:    1024,
	WriteBufferSize:   8192,
	EnableCompression: true,
	CheckOrigin: func(r *http.Request) bool {
		return origins.allow(r.Header.Get("Origin"))
	},
}

// clientPool переиспользует Client структуры между подключениями.
var clientPool = sync.Pool{
	New: func() interface{} { return new(Client) },
}

// Client - одно WebSocket соединение подписчика событий.
//
// На клиента работают две горутины: readPump следит за живостью
// соединения, writePump пишет из буфера send и шлет ping.
// Жизненный цикл завершает readPump: снимает клиента с регистрации,
// закрывает соединение, дожидается выхода writePump и возвращает
// структуру в пул.
type Client struct {
	conn *websocket.Conn

	// Hub, которому принадлежит клиент
	hub *Hub

	// Буферизованный канал исходящих сообщений.
	// Закрывается Hub при снятии с регистрации.
	send chan []byte

	// Закрывается при выходе writePump: клиента нельзя возвращать
	// в пул, пока горутина записи жива
	writeDone chan struct{}
}

// bind готовит клиента из пула к свежему соединению. Каналы не
// переиспользуются: send закрывает Hub при отключении, поэтому оба
// создаются заново.
func (c *Client) bind(hub *Hub, conn *websocket.Conn) {
	c.conn = conn
	c.hub = hub
	c.send = make(chan []byte, sendQueueSize)
	c.writeDone = make(chan struct{})
}

// returnToPool зачищает ссылки и отдает структуру обратно в пул
func (c *Client) returnToPool() {
	*c = Client{}
	clientPool.Put(c)
}

// extendRead продлевает дедлайн чтения. Вызывается на старте read pump
// и после каждого pong.
func (c *Client) extendRead() { c.conn.SetReadDeadline(time.Now().Add(pongWait)) }

// readPump вычитывает входящие фреймы. Поток данных односторонний,
// поэтому содержимое отбрасывается; цикл нужен для обработки pong
// и обнаружения закрытия.
func (c *Client) readPump() {
	defer func() {
		// После Stop цикл Hub уже не читает unregister
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stop:
		}
		c.conn.Close()
		<-c.writeDone
		c.returnToPool()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.extendRead()
	c.conn.SetPongHandler(func(string) error { c.extendRead(); return nil })

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				utils.Warn("websocket read error", utils.Err(err))
			}
			break
		}
	}
}

// writeFrame пишет сообщение и дописывает в тот же фрейм хвост из send.
func (c *Client) writeFrame(message []byte) error {
	frame, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	frame.Write(message)
	c.batchPending(frame)
	return frame.Close()
}

// batchPending дописывает накопившиеся в send сообщения в открытый
// фрейм через newline, чтобы сократить число syscall на всплесках.
// Только неблокирующее чтение: len(send) между проверкой и чтением
// уже мог измениться.
func (c *Client) batchPending(frame io.Writer) {
	for {
		select {
		case pending, ok := <-c.send:
			if !ok {
				return
			}
			frame.Write([]byte{'\n'})
			frame.Write(pending)
		default:
			return
		}
	}
}

// writePump пишет сообщения из send и поддерживает соединение ping'ами.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.writeDone)
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub снял клиента и закрыл канал
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.writeFrame(message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWS - HTTP handler потока событий: апгрейдит соединение, берет
// клиента из пула, регистрирует его в Hub и запускает горутины.
// Подключается в routes замыканием, которое передает сюда hub.
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		utils.Warn("websocket upgrade failed", utils.Err(err))
		return
	}

	client := clientPool.Get().(*Client)
	client.bind(hub, conn)

	select {
	case hub.register <- client:
	case <-hub.stop:
		conn.Close()
		client.returnToPool()
		return
	}

	go client.writePump()
	go client.readPump()
}
