package websocket

import (
	"bytes"
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"

	"moexbot/internal/models"
	"moexbot/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Размер буфера broadcast канала. При переполнении новые сообщения
// отбрасываются, а не блокируют отправителя.
const broadcastBufferSize = 256

// jsonBufferPool переиспользует буферы сериализации между Broadcast,
// чтобы не аллоцировать на каждое сообщение.
var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

// Hub раздает события движка всем подключенным WebSocket клиентам.
//
// Движок и сервисы публикуют события типизированными Broadcast*
// методами, фронтенд получает их без polling. Отправители никогда
// не блокируются: переполненный канал роняет сообщение, а клиент,
// не успевающий читать, отключается.
//
// Жизненный цикл: NewHub -> go Run() -> Broadcast* -> Stop().
type Hub struct {
	clients map[*Client]bool

	// Очередь кадров на рассылку
	broadcast chan []byte

	register   chan *Client
	unregister chan *Client

	// Сигнал остановки главного цикла
	stop     chan struct{}
	stopOnce sync.Once

	mu sync.RWMutex

	// Счетчики для lock-free чтения из горячих путей
	clientCount int64
	dropped     int64
}

// NewHub собирает hub с пустым списком клиентов
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, broadcastBufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
	}
}

// Run - главный цикл hub, запускать в отдельной горутине.
// Обслуживает регистрацию, отключение и рассылку; завершается
// после Stop, закрыв каналы всех клиентов.
func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			h.closeAllClients()
			return

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case frame := <-h.broadcast:
			h.fanOut(frame)
		}
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()

	atomic.StoreInt64(&h.clientCount, int64(n))
	utils.Debug("websocket client connected", utils.Int("clients", n))
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	h.dropLocked(c)
	n := len(h.clients)
	h.mu.Unlock()

	atomic.StoreInt64(&h.clientCount, int64(n))
	utils.Debug("websocket client disconnected", utils.Int("clients", n))
}

// dropLocked удаляет клиента и закрывает его канал. Вызывать под mu.
func (h *Hub) dropLocked(c *Client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// fanOut раздает кадр всем клиентам без удержания write lock:
// список копируется под коротким RLock, не успевающие читать
// клиенты отключаются отдельным проходом.
func (h *Hub) fanOut(frame []byte) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	var slow []*Client
	for _, c := range targets {
		select {
		case c.send <- frame:
		default:
			slow = append(slow, c)
		}
	}
	if len(slow) == 0 {
		return
	}

	h.mu.Lock()
	for _, c := range slow {
		h.dropLocked(c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	atomic.StoreInt64(&h.clientCount, int64(n))
	utils.Warn("removed slow websocket clients",
		utils.Int("removed", len(slow)),
		utils.Int("clients", n))
}

// Stop останавливает главный цикл и отключает всех клиентов.
// Повторные вызовы безопасны.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	for c := range h.clients {
		h.dropLocked(c)
	}
	h.mu.Unlock()
	atomic.StoreInt64(&h.clientCount, 0)
}

// encodeFrame сериализует сообщение через пул буферов и возвращает
// копию байтов, которой владеет вызывающий.
func encodeFrame(message interface{}) ([]byte, error) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	defer jsonBufferPool.Put(buf)
	buf.Reset()

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		return nil, err
	}

	// Encode завершает кадр переводом строки, по wire он не нужен
	frame := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
	return append([]byte(nil), frame...), nil
}

// Broadcast сериализует сообщение и отправляет его всем клиентам.
// Не блокируется: при переполнении очереди сообщение отбрасывается.
func (h *Hub) Broadcast(message interface{}) {
	frame, err := encodeFrame(message)
	if err != nil {
		utils.Error("websocket message encode failed", utils.Err(err))
		return
	}
	h.BroadcastRaw(frame)
}

// BroadcastRaw отправляет уже сериализованные данные всем клиентам.
// Вызывающий не должен изменять data после вызова.
func (h *Hub) BroadcastRaw(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		atomic.AddInt64(&h.dropped, 1)
	}
}

// BroadcastSignal отправляет торговое намерение стратегии
func (h *Hub) BroadcastSignal(intent *models.Intent) {
	h.Broadcast(NewSignalMessage(intent))
}

// BroadcastOrderResult отправляет итог отправки заявки
func (h *Hub) BroadcastOrderResult(order *models.OrderRecord) {
	h.Broadcast(NewOrderResultMessage(order))
}

// BroadcastPositionUpdate отправляет изменение позиции портфеля
func (h *Hub) BroadcastPositionUpdate(pos models.Position) {
	h.Broadcast(NewPositionUpdateMessage(pos))
}

// BroadcastEngineState отправляет смену состояния движка
func (h *Hub) BroadcastEngineState(state string, paused bool) {
	h.Broadcast(NewEngineStateMessage(state, paused))
}

// BroadcastNotification отправляет свежую запись журнала событий
func (h *Hub) BroadcastNotification(notif *models.Notification) {
	h.Broadcast(NewNotificationMessage(notif))
}

// BroadcastStatsUpdate отправляет пересчитанную статистику торговли
func (h *Hub) BroadcastStatsUpdate(stats *models.Stats) {
	h.Broadcast(NewStatsUpdateMessage(stats))
}

// BroadcastScreenerUpdate отправляет результаты сканирования рынка
func (h *Hub) BroadcastScreenerUpdate(scores []models.StockScore) {
	h.Broadcast(NewScreenerUpdateMessage(scores))
}

// ClientCount возвращает число подключенных клиентов
func (h *Hub) ClientCount() int {
	return int(atomic.LoadInt64(&h.clientCount))
}

// DroppedMessages возвращает число кадров, отброшенных из-за
// переполнения очереди с момента создания hub
func (h *Hub) DroppedMessages() int64 {
	return atomic.LoadInt64(&h.dropped)
}
