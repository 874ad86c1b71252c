package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"camwatch/internal/camera"
	"camwatch/internal/config"
)

// snapshotTimeout は静止画の取得を待つ時間
const snapshotTimeout = 10 * time.Second

// HealthResponse はヘルスチェックの応答
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ServerInfo はリッスンアドレス
type ServerInfo struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// StatusResponse はシステム状態の応答
type StatusResponse struct {
	Status      string     `json:"status"`
	Server      ServerInfo `json:"server"`
	Watching    bool       `json:"watching"`
	InputFormat string     `json:"input_format"`
	Interval    string     `json:"interval"`
	Devices     int        `json:"devices"`
	LastError   *string    `json:"last_error,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

// DeviceEntry はデバイス一覧の1件
type DeviceEntry struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Path  string `json:"path"`
}

// DevicesResponse はデバイス一覧の応答
type DevicesResponse struct {
	Devices []DeviceEntry `json:"devices"`
}

// ErrorResponse はエラー応答
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Details   *string   `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler は API エンドポイントの実装
type Handler struct {
	config  *config.Config
	watcher *camera.Watcher
	hub     *EventHub
	logger  *zap.SugaredLogger
}

// HealthCheck はヘルスチェックエンドポイントの実装
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// GetStatus はシステム状態取得エンドポイントの実装
func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.status())
}

func (h *Handler) status() StatusResponse {
	response := StatusResponse{
		Status: "running",
		Server: ServerInfo{
			Host: h.config.Server.Host,
			Port: h.config.Server.Port,
		},
		Watching:    h.watcher.IsWatching(),
		InputFormat: h.watcher.InputFormat().String(),
		Interval:    h.watcher.Interval().String(),
		Devices:     h.watcher.Devices().Len(),
		Timestamp:   time.Now(),
	}
	if err := h.watcher.LastError(); err != nil {
		response.LastError = stringPtr(err.Error())
	}
	return response
}

// GetDevices はデバイス一覧取得エンドポイントの実装
func (h *Handler) GetDevices(c *gin.Context) {
	c.JSON(http.StatusOK, devicesResponse(h.watcher.Devices()))
}

// Resync は手動の再同期エンドポイントの実装
func (h *Handler) Resync(c *gin.Context) {
	if err := h.watcher.Resynchronize(c.Request.Context()); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, devicesResponse(h.watcher.Devices()))
}

// StartWatching は定期再同期の開始エンドポイントの実装
func (h *Handler) StartWatching(c *gin.Context) {
	if err := h.watcher.StartWatching(c.Request.Context()); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.status())
}

// StopWatching は定期再同期の停止エンドポイントの実装
func (h *Handler) StopWatching(c *gin.Context) {
	if err := h.watcher.StopWatching(); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.status())
}

// GetSnapshot は指定デバイスの静止画を1枚返す
func (h *Handler) GetSnapshot(c *gin.Context) {
	handle, ok := h.openCamera(c)
	if !ok {
		return
	}
	defer func() { _ = handle.Close() }()

	ctx, cancel := context.WithTimeout(c.Request.Context(), snapshotTimeout)
	defer cancel()

	frame, err := camera.FirstFrame(ctx, handle)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/jpeg", frame)
}

// GetStream は指定デバイスの MJPEG ストリームを配信する
func (h *Handler) GetStream(c *gin.Context) {
	handle, ok := h.openCamera(c)
	if !ok {
		return
	}
	defer func() { _ = handle.Close() }()

	reader, ok := handle.(camera.FrameReader)
	if !ok {
		writeError(c, http.StatusNotImplemented, "stream_unsupported", "このデバイスはストリーミングに対応していません", nil)
		return
	}

	// レスポンスヘッダーを設定
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	frames := reader.Frames()
	c.Stream(func(w io.Writer) bool {
		var frame []byte
		select {
		case f, ok := <-frames:
			if !ok {
				return false
			}
			frame = f
		case <-c.Request.Context().Done():
			return false
		}
		if _, err := w.Write([]byte("--frame\r\nContent-Type: image/jpeg\r\n\r\n")); err != nil {
			return false
		}
		if _, err := w.Write(frame); err != nil {
			return false
		}
		_, err := w.Write([]byte("\r\n"))
		return err == nil
	})
}

// GetEvents はデバイスイベントを Server-Sent Events で配信する
func (h *Handler) GetEvents(c *gin.Context) {
	events, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	// 接続直後に現在の状態を送る
	c.SSEvent("snapshot", devicesResponse(h.watcher.Devices()))
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(event.Kind), event)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// GetEventsWebSocket はデバイスイベントを WebSocket で配信する
func (h *Handler) GetEventsWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debugw("WebSocket のアップグレードに失敗しました", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	events, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()

	// クライアントからの切断を検知する
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
					time.Now().Add(time.Second))
				return
			}
			if err := conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

// openCamera はクエリの index か path でカメラを開く。失敗時は応答を書いて false を返す
func (h *Handler) openCamera(c *gin.Context) (camera.Handle, bool) {
	selector, err := selectorFromQuery(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_selector", err.Error(), nil)
		return nil, false
	}

	handle, err := h.watcher.Camera(c.Request.Context(), selector)
	if err != nil {
		h.abortWithError(c, err)
		return nil, false
	}
	return handle, true
}

// selectorFromQuery は ?index=N か ?path=P からセレクタを作る
func selectorFromQuery(c *gin.Context) (camera.Selector, error) {
	if raw, ok := c.GetQuery("index"); ok {
		index, err := strconv.Atoi(raw)
		if err != nil {
			return nil, errors.New("index は整数で指定してください")
		}
		return camera.Index(index), nil
	}
	if path, ok := c.GetQuery("path"); ok && path != "" {
		return camera.Path(path), nil
	}
	return nil, errors.New("index か path を指定してください")
}

// abortWithError はエラーの種類に応じたステータスで応答する
func (h *Handler) abortWithError(c *gin.Context, err error) {
	var enumErr *camera.PlatformEnumerationError

	switch {
	case errors.Is(err, camera.ErrDeviceNotFound):
		writeError(c, http.StatusNotFound, "device_not_found", "指定されたデバイスが見つかりません", stringPtr(err.Error()))
	case errors.Is(err, camera.ErrDisposed):
		writeError(c, http.StatusServiceUnavailable, "watcher_disposed", "監視は終了しています", nil)
	case errors.As(err, &enumErr), errors.Is(err, camera.ErrMalformedDevice):
		writeError(c, http.StatusBadGateway, "enumeration_failed", "デバイスの列挙に失敗しました", stringPtr(err.Error()))
	case errors.Is(err, context.DeadlineExceeded):
		writeError(c, http.StatusGatewayTimeout, "timeout", "デバイスの応答がありません", stringPtr(err.Error()))
	default:
		h.logger.Warnw("リクエストの処理に失敗しました", "path", c.Request.URL.Path, "error", err)
		writeError(c, http.StatusInternalServerError, "internal_error", "内部エラーが発生しました", stringPtr(err.Error()))
	}
}

func writeError(c *gin.Context, status int, code, message string, details *string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now(),
	})
}

func devicesResponse(set camera.DeviceSet) DevicesResponse {
	devices := set.Devices()
	entries := make([]DeviceEntry, 0, len(devices))
	for i, d := range devices {
		entries = append(entries, DeviceEntry{Index: i, Name: d.Name, Path: d.Path})
	}
	return DevicesResponse{Devices: entries}
}

// stringPtr は文字列のポインタを返すヘルパー関数
func stringPtr(s string) *string {
	return &s
}
