package device

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/jypelle/cedarhud/apimodel"
	"github.com/jypelle/cedarhud/internal/srv/config"
	"github.com/jypelle/cedarhud/internal/srv/render"
	"github.com/jypelle/cedarhud/internal/tool"
	"github.com/jypelle/cedarhud/internal/version"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const maxBodySize = 4096

// Hud is what the api reads from the running daemon
type Hud interface {
	LatestFrame() *render.Frame
	Status() apimodel.StatusData
}

type Api struct {
	config *config.ServerConfig
	hud    Hud

	router    *mux.Router
	apiRouter *mux.Router
	handler   http.Handler

	writeLimiter *rate.Limiter
	upgrader     websocket.Upgrader
}

func NewApi(serverConfig *config.ServerConfig, hud Hud) *Api {
	api := &Api{
		config:       serverConfig,
		hud:          hud,
		writeLimiter: rate.NewLimiter(rate.Limit(5), 10),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: render.Width * render.Height * 2,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	api.router = mux.NewRouter().StrictSlash(false)

	// API Routes
	api.apiRouter = api.router.PathPrefix("/api").Subrouter()
	api.apiRouter.NotFoundHandler = http.HandlerFunc(ErrorNotFoundAction)
	api.apiRouter.MethodNotAllowedHandler = http.HandlerFunc(ErrorMethodNotAllowedAction)
	api.apiRouter.Use(api.recoverMiddleware, api.authMiddleware, api.rateMiddleware)

	// Frame stream is registered outside of the compressed routes: it hijacks the connection
	api.apiRouter.HandleFunc("/frame/ws", api.frameStreamAction).Methods("GET")

	compressed := api.apiRouter.NewRoute().Subrouter()
	compressed.NotFoundHandler = http.HandlerFunc(ErrorNotFoundAction)
	compressed.MethodNotAllowedHandler = http.HandlerFunc(ErrorMethodNotAllowedAction)
	compressed.Use(handlers.CompressHandler)

	compressed.HandleFunc("/is_alive",
		func(w http.ResponseWriter, r *http.Request) {
			ErrorStatusAction(w, r, http.StatusOK)
		}).Methods("GET")
	compressed.HandleFunc("/brightness", api.getBrightnessAction).Methods("GET")
	compressed.HandleFunc("/brightness", api.setBrightnessAction).Methods("POST")
	compressed.HandleFunc("/rotation", api.getRotationAction).Methods("GET")
	compressed.HandleFunc("/rotation", api.setRotationAction).Methods("POST")
	compressed.HandleFunc("/frame", api.frameAction).Methods("GET")
	compressed.HandleFunc("/status", api.statusAction).Methods("GET")

	// Optional web ui
	if webDir := serverConfig.ApiParam.WebDir; webDir != "" {
		api.router.PathPrefix("/").Handler(handlers.CompressHandler(http.FileServer(http.Dir(webDir))))
	}

	// Tell the browser that it's OK for JS to communicate with the server
	headersOk := handlers.AllowedHeaders([]string{"Content-Type", "x-api-key"})
	originsOk := handlers.AllowedOrigins([]string{"*"})
	methodsOk := handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"})
	api.handler = handlers.CORS(originsOk, headersOk, methodsOk)(api.router)

	return api
}

// Router is the complete http handler of the api
func (api *Api) Router() http.Handler {
	return api.handler
}

// Serve runs the https server until ctx is done. A server that cannot start
// is logged and leaves the rest of the daemon running.
func (api *Api) Serve(ctx context.Context) error {
	apiParam := api.config.ApiParam
	addr := net.JoinHostPort(apiParam.Host, strconv.FormatInt(apiParam.SslPort, 10))
	logrus.Infof("Start api on https://%s", addr)

	err := tool.EnsureTlsCertificate(
		version.AppName,
		"Cedar HUD",
		api.config.GetCompleteKeyFilename(),
		api.config.GetCompleteCertFilename(),
		apiParam.Hostnames)
	if err != nil {
		logrus.Errorf("Api disabled, unable to prepare tls certificate: %v", err)
		return nil
	}

	server := &http.Server{
		Addr:         addr,
		Handler:      api.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // frame streams are long lived
		IdleTimeout:  240 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServeTLS(api.config.GetCompleteCertFilename(), api.config.GetCompleteKeyFilename())
	}()

	select {
	case err = <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("Api stopped: %v", err)
		}
		return nil
	case <-ctx.Done():
	}

	logrus.Infof("Stop api")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = server.Shutdown(shutdownCtx); err != nil {
		logrus.Warnf("Api shutdown: %v", err)
	}
	return nil
}

func (api *Api) recoverMiddleware(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestId := r.Header.Get("X-Request-Id")
		if requestId == "" {
			requestId = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", requestId)

		defer func() {
			if rec := recover(); rec != nil {
				logrus.Warningf("[%s] recovered from panic : [%v] - stack trace : \n [%s]", requestId, rec, debug.Stack())
				GlobalErrorAction(w, fmt.Sprintf("%v", rec), http.StatusInternalServerError)
			}
		}()

		logrus.Debugf("[%s] %s %s%s", requestId, r.Method, r.Host, r.URL.Path)

		handler.ServeHTTP(w, r)
	})
}

func (api *Api) authMiddleware(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		expected := api.config.ApiParam.ApiKey
		if expected != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get("x-api-key")), []byte(expected)) != 1 {
			ErrorStatusAction(w, r, http.StatusForbidden)
			return
		}
		handler.ServeHTTP(w, r)
	})
}

func (api *Api) rateMiddleware(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && !api.writeLimiter.Allow() {
			ErrorStatusAction(w, r, http.StatusTooManyRequests)
			return
		}
		handler.ServeHTTP(w, r)
	})
}

func (api *Api) getBrightnessAction(w http.ResponseWriter, r *http.Request) {
	brightness := int64(api.config.Brightness())
	sendJson(w, apimodel.BrightnessData{Brightness: &brightness})
}

func (api *Api) setBrightnessAction(w http.ResponseWriter, r *http.Request) {
	var data apimodel.BrightnessData
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&data); err != nil || data.Brightness == nil {
		apimodel.WrongParametersErrorMessage.SendError(w)
		return
	}
	if err := api.config.SetBrightness(*data.Brightness); err != nil {
		GlobalErrorAction(w, err.Error(), http.StatusBadRequest)
		return
	}
	logrus.Infof("Brightness set to %d", *data.Brightness)
	sendJson(w, data)
}

func (api *Api) getRotationAction(w http.ResponseWriter, r *http.Request) {
	rotation := int64(api.config.Rotation())
	sendJson(w, apimodel.RotationData{Rotation: &rotation})
}

func (api *Api) setRotationAction(w http.ResponseWriter, r *http.Request) {
	var data apimodel.RotationData
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&data); err != nil || data.Rotation == nil {
		apimodel.WrongParametersErrorMessage.SendError(w)
		return
	}
	if err := api.config.SetRotation(*data.Rotation); err != nil {
		GlobalErrorAction(w, err.Error(), http.StatusBadRequest)
		return
	}
	logrus.Infof("Rotation set to %d", *data.Rotation)
	sendJson(w, data)
}

func (api *Api) frameAction(w http.ResponseWriter, r *http.Request) {
	frame := api.hud.LatestFrame()
	if frame == nil {
		apimodel.NoFrameErrorMessage.SendError(w)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Frame-Format", "rgb565le")
	w.Header().Set("X-Frame-Size", fmt.Sprintf("%dx%d", render.Width, render.Height))
	if _, err := w.Write(frame.AppendLittleEndian(nil)); err != nil {
		logrus.Debugf("Unable to send frame: %v", err)
	}
}

// frameStreamAction pushes every new committed frame as a binary websocket message
func (api *Api) frameStreamAction(w http.ResponseWriter, r *http.Request) {
	conn, err := api.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Debugf("Websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reading is only needed to notice the client going away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(api.config.Display.TickInterval())
	defer ticker.Stop()

	var sent *render.Frame
	buf := make([]byte, 0, render.Width*render.Height*2)
	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		case <-ticker.C:
			frame := api.hud.LatestFrame()
			if frame == nil || frame == sent {
				continue
			}
			buf = frame.AppendLittleEndian(buf[:0])
			conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
			if err := conn.WriteMessage(websocket.BinaryMessage, buf); err != nil {
				logrus.Debugf("Frame stream closed: %v", err)
				return
			}
			sent = frame
		}
	}
}

func (api *Api) statusAction(w http.ResponseWriter, r *http.Request) {
	sendJson(w, api.hud.Status())
}

func sendJson(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("Unable to encode response: %v", err)
	}
}

func ErrorNotFoundAction(w http.ResponseWriter, r *http.Request) {
	ErrorStatusAction(w, r, http.StatusNotFound)
}

func ErrorMethodNotAllowedAction(w http.ResponseWriter, r *http.Request) {
	ErrorStatusAction(w, r, http.StatusMethodNotAllowed)
}

func ErrorStatusAction(w http.ResponseWriter, r *http.Request, status int) {
	ErrorMessageAction(w, "", status)
}

func GlobalErrorAction(w http.ResponseWriter, message string, status int) {
	ErrorMessageAction(w, message, status)
}

func ErrorMessageAction(w http.ResponseWriter, title string, status int) {
	apimodel.ErrorMessage{
		ErrStatusCode: status,
		ErrMessage:    title,
	}.SendError(w)
}
