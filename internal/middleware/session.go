package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/multiguard/internal/session"
	apperrors "github.com/charlesng35/multiguard/pkg/errors"
	"github.com/charlesng35/multiguard/pkg/logger"
	"github.com/charlesng35/multiguard/pkg/response"
)

const CtxSessionKey = "session"

// StartSession loads the request session and persists it before the first
// byte of the response is written, so the session and queued cookies always
// reach the client.
func StartSession(manager *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := manager.Start(c.Request.Context(), c.Request)
		if err != nil {
			response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
			c.Abort()
			return
		}
		c.Set(CtxSessionKey, sess)

		writer := &sessionWriter{ResponseWriter: c.Writer}
		writer.commit = func() {
			meta := session.Meta{IPAddress: c.ClientIP(), UserAgent: c.Request.UserAgent()}
			if err := manager.Save(c.Request.Context(), sess, meta); err != nil {
				logger.WithModule("session").Error("failed to save session", zap.Error(err))
			}
			header := writer.ResponseWriter.Header()
			http.SetCookie(writer.ResponseWriter, manager.Cookie(sess))
			for _, cookie := range sess.QueuedCookies() {
				http.SetCookie(writer.ResponseWriter, cookie)
			}
			header.Add("Cache-Control", "no-store")
		}
		c.Writer = writer

		c.Next()
		writer.flushSession()
	}
}

// CurrentSession returns the session started by StartSession.
func CurrentSession(c *gin.Context) (*session.Session, bool) {
	value, ok := c.Get(CtxSessionKey)
	if !ok {
		return nil, false
	}
	sess, ok := value.(*session.Session)
	return sess, ok
}

type sessionWriter struct {
	gin.ResponseWriter
	once   sync.Once
	commit func()
}

func (w *sessionWriter) flushSession() {
	w.once.Do(w.commit)
}

func (w *sessionWriter) Write(data []byte) (int, error) {
	w.flushSession()
	return w.ResponseWriter.Write(data)
}

func (w *sessionWriter) WriteString(s string) (int, error) {
	w.flushSession()
	return w.ResponseWriter.WriteString(s)
}

func (w *sessionWriter) WriteHeaderNow() {
	w.flushSession()
	w.ResponseWriter.WriteHeaderNow()
}

func (w *sessionWriter) Flush() {
	w.flushSession()
	w.ResponseWriter.Flush()
}
