// notes/http/handlers.go
package http

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ViniZap4/lumi-notes/auth"
	"github.com/ViniZap4/lumi-notes/domain"
	"github.com/ViniZap4/lumi-notes/hub"
	"github.com/ViniZap4/lumi-notes/pathcodec"
	"github.com/ViniZap4/lumi-notes/syncer"
)

type userResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	FullName    string    `json:"full_name"`
	PhoneNumber string    `json:"phone_number"`
	CreatedAt   time.Time `json:"created_at"`
}

type authResponse struct {
	Token     string       `json:"token"`
	SessionID string       `json:"session_id"`
	OpID      string       `json:"op_id,omitempty"`
	User      userResponse `json:"user"`
}

type sessionResponse struct {
	UserID string `json:"user_id"`
	State  string `json:"state"`
}

type opResponse struct {
	OpID string `json:"op_id"`
}

// splitPath turns a slash separated request path into tree segments.
func splitPath(p string) []string {
	p = strings.Trim(p, pathcodec.Separator)
	if p == "" {
		return nil
	}
	return pathcodec.Decode(p)
}

func (s *Server) HandleRegister(c *fiber.Ctx) error {
	var req struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		FullName    string `json:"full_name"`
		PhoneNumber string `json:"phone_number"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	u, err := s.credentials.Register(c.UserContext(), req.Email, req.Password, req.FullName, req.PhoneNumber)
	if err != nil {
		return err
	}
	return s.signIn(c, fiber.StatusCreated, u)
}

func (s *Server) HandleLogin(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	u, err := s.credentials.Authenticate(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return s.signIn(c, fiber.StatusOK, u)
}

// signIn issues a token and opens the user's session.
func (s *Server) signIn(c *fiber.Ctx, status int, u *domain.User) error {
	sessionID := s.credentials.SessionID(u)
	token, err := s.tokens.Issue(sessionID, u.Email, s.tokenTTL)
	if err != nil {
		return err
	}

	opID, err := s.sessions.Start(c.UserContext(), sessionID)
	if err != nil {
		return err
	}

	return c.Status(status).JSON(authResponse{
		Token:     token,
		SessionID: sessionID,
		OpID:      opID,
		User: userResponse{
			ID:          u.ID,
			Email:       u.Email,
			FullName:    u.FullName,
			PhoneNumber: u.PhoneNumber,
			CreatedAt:   u.CreatedAt,
		},
	})
}

func (s *Server) HandleStartSession(c *fiber.Ctx) error {
	opID, err := s.sessions.Start(c.UserContext(), auth.Subject(c))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(opResponse{OpID: opID})
}

func (s *Server) HandleSessionState(c *fiber.Ctx) error {
	eng, err := s.engine(c)
	if err != nil {
		return err
	}
	state, err := eng.State(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(sessionResponse{UserID: auth.Subject(c), State: state.String()})
}

func (s *Server) HandleStopSession(c *fiber.Ctx) error {
	if err := s.sessions.Stop(c.UserContext(), auth.Subject(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) engine(c *fiber.Ctx) (*syncer.Engine, error) {
	return s.sessions.Engine(auth.Subject(c))
}

func (s *Server) HandleTree(c *fiber.Ctx) error {
	eng, err := s.engine(c)
	if err != nil {
		return err
	}
	view, err := eng.Tree(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(view)
}

func (s *Server) HandleCreateFolder(c *fiber.Ctx) error {
	var req struct {
		Parent string `json:"parent"`
		Name   string `json:"name"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	eng, err := s.engine(c)
	if err != nil {
		return err
	}
	opID, err := eng.CreateFolder(c.UserContext(), splitPath(req.Parent), req.Name)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(opResponse{OpID: opID})
}

func (s *Server) HandleCreateNote(c *fiber.Ctx) error {
	var req struct {
		Parent string `json:"parent"`
		Title  string `json:"title"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	eng, err := s.engine(c)
	if err != nil {
		return err
	}
	opID, err := eng.CreateNote(c.UserContext(), splitPath(req.Parent), req.Title)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(opResponse{OpID: opID})
}

// HandleGetNote returns the node from the local tree, or straight from the
// store with ?source=remote.
func (s *Server) HandleGetNote(c *fiber.Ctx) error {
	path := splitPath(c.Params("*"))
	if len(path) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "Note path required")
	}

	eng, err := s.engine(c)
	if err != nil {
		return err
	}

	if c.Query("source") == "remote" {
		v, err := eng.Fetch(c.UserContext(), path)
		if err != nil {
			return err
		}
		return c.JSON(domain.NodeView{
			Name:    path[len(path)-1],
			Path:    strings.Join(path, pathcodec.Separator),
			Kind:    v.Kind,
			Content: v.Content,
		})
	}

	view, err := eng.Lookup(c.UserContext(), path)
	if err != nil {
		return err
	}
	return c.JSON(view)
}

func (s *Server) HandleUpdateNote(c *fiber.Ctx) error {
	path := splitPath(c.Params("*"))
	if len(path) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "Note path required")
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	eng, err := s.engine(c)
	if err != nil {
		return err
	}
	opID, err := eng.SetContent(c.UserContext(), path, req.Content)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(opResponse{OpID: opID})
}

func (s *Server) HandleDeleteNode(c *fiber.Ctx) error {
	path := splitPath(c.Params("*"))
	if len(path) == 0 {
		return domain.ErrCannotDeleteRoot
	}

	eng, err := s.engine(c)
	if err != nil {
		return err
	}
	opID, err := eng.Delete(c.UserContext(), path)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(opResponse{OpID: opID})
}

// HandleEvents streams hub messages for the caller as server-sent events.
// The current tree is sent first when a session is running.
func (s *Server) HandleEvents(c *fiber.Ctx) error {
	userID := auth.Subject(c)

	var initial *hub.Message
	if eng, err := s.sessions.Engine(userID); err == nil {
		if view, err := eng.Tree(c.UserContext()); err == nil {
			msg := hub.TreeChanged(view)
			initial = &msg
		}
	}

	client := s.hub.Subscribe(userID)
	if client == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "Server shutting down")
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	keepAlive := s.keepAlive
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer s.hub.Unsubscribe(client)

		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()

		if initial != nil {
			if err := writeEvent(w, *initial); err != nil {
				return
			}
		}
		for {
			select {
			case msg, ok := <-client.Messages():
				if !ok {
					return
				}
				if err := writeEvent(w, msg); err != nil {
					s.logger.Debug().Err(err).Str("user_id", userID).Msg("event stream closed")
					return
				}
			case <-ticker.C:
				fmt.Fprint(w, ": keepalive\n\n")
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})
	return nil
}

func writeEvent(w *bufio.Writer, msg hub.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Type, data)
	return w.Flush()
}
