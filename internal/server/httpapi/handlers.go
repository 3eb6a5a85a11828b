package httpapi

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/parley/internal/common"
	"github.com/dmitrijs2005/parley/internal/server/models"
	"github.com/dmitrijs2005/parley/internal/server/services"
	"github.com/gofiber/fiber/v2"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}

type loginResponse struct {
	AccessToken string `json:"accessToken"`
}

type sendRequest struct {
	ReceiverID string  `json:"receiverId"`
	Content    *string `json:"content"`
	ReplyToID  *string `json:"replyToId"`
	MediaURL   *string `json:"mediaUrl"`
	MediaType  *string `json:"mediaType"`
}

type editRequest struct {
	Content string `json:"content"`
}

type markReadRequest struct {
	MessageIDs []string `json:"messageIds"`
}

type replyResponse struct {
	ID        string  `json:"id"`
	SenderID  string  `json:"senderId"`
	Content   *string `json:"content"`
	MediaType *string `json:"mediaType,omitempty"`
}

type messageResponse struct {
	ID         string         `json:"id"`
	SenderID   string         `json:"senderId"`
	ReceiverID string         `json:"receiverId"`
	Content    *string        `json:"content"`
	MediaURL   *string        `json:"mediaUrl,omitempty"`
	MediaType  *string        `json:"mediaType,omitempty"`
	Read       bool           `json:"read"`
	IsEdited   bool           `json:"isEdited"`
	ReplyToID  *string        `json:"replyToId,omitempty"`
	ReplyTo    *replyResponse `json:"replyTo,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

type lastMessageResponse struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	MediaType *string   `json:"mediaType,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	IsMine    bool      `json:"isMine"`
}

type conversationResponse struct {
	UserID      string               `json:"userId"`
	Username    string               `json:"username"`
	LastMessage *lastMessageResponse `json:"lastMessage"`
	UnreadCount int64                `json:"unreadCount"`
}

type messageInfoResponse struct {
	MessageID   string     `json:"messageId"`
	DeliveredAt time.Time  `json:"deliveredAt"`
	Read        bool       `json:"read"`
	ReadAt      *time.Time `json:"readAt"`
}

type mediaResponse struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

func toMessageResponse(m *models.Message) messageResponse {
	r := messageResponse{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		MediaURL:   m.MediaURL,
		MediaType:  m.MediaType,
		Read:       m.Read,
		IsEdited:   m.IsEdited,
		ReplyToID:  m.ReplyToID,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
	if p := m.ReplyTo; p != nil {
		r.ReplyTo = &replyResponse{ID: p.ID, SenderID: p.SenderID, Content: p.Content, MediaType: p.MediaType}
	}
	return r
}

func toConversationResponse(c *models.ConversationSummary) conversationResponse {
	r := conversationResponse{UserID: c.UserID, Username: c.UserName, UnreadCount: c.UnreadCount}
	if lm := c.LastMessage; lm != nil {
		r.LastMessage = &lastMessageResponse{
			ID:        lm.ID,
			SenderID:  lm.SenderID,
			Content:   lm.Content,
			MediaType: lm.MediaType,
			CreatedAt: lm.CreatedAt,
			IsMine:    lm.IsMine,
		}
	}
	return r
}

func badRequest(detail string) error {
	return fmt.Errorf("%w: %s", common.ErrorValidation, detail)
}

// --- users ---

func (s *Server) register(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, s.logger, badRequest("malformed body"))
	}

	u, err := s.users.Register(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return writeError(c, s.logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(userResponse{ID: u.ID, Username: u.UserName, CreatedAt: u.CreatedAt})
}

func (s *Server) login(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, s.logger, badRequest("malformed body"))
	}

	token, err := s.users.Login(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return writeError(c, s.logger, err)
	}
	return c.JSON(loginResponse{AccessToken: token})
}

// --- conversations ---

func (s *Server) listConversations(c *fiber.Ctx) error {
	list, err := s.conversations.ListConversations(c.UserContext(), currentUser(c))
	if err != nil {
		return writeError(c, s.logger, err)
	}

	out := make([]conversationResponse, 0, len(list))
	for _, sum := range list {
		out = append(out, toConversationResponse(sum))
	}
	return c.JSON(out)
}

func (s *Server) createConversation(c *fiber.Ctx) error {
	sum, err := s.conversations.CreateConversationPlaceholder(c.UserContext(), currentUser(c), c.Params("userId"))
	if err != nil {
		return writeError(c, s.logger, err)
	}
	return c.JSON(toConversationResponse(sum))
}

func (s *Server) deleteConversation(c *fiber.Ctx) error {
	n, err := s.messages.DeleteConversation(c.UserContext(), currentUser(c), c.Params("userId"))
	if err != nil {
		return writeError(c, s.logger, err)
	}
	return c.JSON(fiber.Map{"mediaCandidates": n})
}

// --- messages ---

func (s *Server) listMessages(c *fiber.Ctx) error {
	list, err := s.messages.ListMessages(c.UserContext(), currentUser(c), c.Params("userId"), c.QueryBool("replies"))
	if err != nil {
		return writeError(c, s.logger, err)
	}

	out := make([]messageResponse, 0, len(list))
	for _, m := range list {
		out = append(out, toMessageResponse(m))
	}
	return c.JSON(out)
}

func (s *Server) sendMessage(c *fiber.Ctx) error {
	var req sendRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, s.logger, badRequest("malformed body"))
	}
	if strings.TrimSpace(req.ReceiverID) == "" {
		return writeError(c, s.logger, badRequest("receiverId is required"))
	}

	m, err := s.messages.Send(c.UserContext(), services.SendRequest{
		SenderID:   currentUser(c),
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
		ReplyToID:  req.ReplyToID,
		MediaURL:   req.MediaURL,
		MediaType:  req.MediaType,
	})
	if err != nil {
		return writeError(c, s.logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toMessageResponse(m))
}

func (s *Server) uploadMedia(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return writeError(c, s.logger, badRequest("file is required"))
	}
	f, err := fh.Open()
	if err != nil {
		return writeError(c, s.logger, err)
	}
	defer f.Close()

	media, err := s.media.Store(c.UserContext(), fh.Filename, fh.Header.Get(fiber.HeaderContentType), fh.Size, f)
	if err != nil {
		return writeError(c, s.logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(mediaResponse{URL: media.URL, Type: media.Type})
}

func (s *Server) editMessage(c *fiber.Ctx) error {
	var req editRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, s.logger, badRequest("malformed body"))
	}

	m, err := s.messages.Edit(c.UserContext(), c.Params("id"), currentUser(c), req.Content)
	if err != nil {
		return writeError(c, s.logger, err)
	}
	return c.JSON(toMessageResponse(m))
}

func (s *Server) deleteMessage(c *fiber.Ctx) error {
	scope := c.Query("scope", services.DeleteModeSelf)
	if err := s.messages.Delete(c.UserContext(), c.Params("id"), currentUser(c), scope); err != nil {
		return writeError(c, s.logger, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) markRead(c *fiber.Ctx) error {
	var req markReadRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, s.logger, badRequest("malformed body"))
	}

	n, err := s.messages.MarkRead(c.UserContext(), currentUser(c), req.MessageIDs)
	if err != nil {
		return writeError(c, s.logger, err)
	}
	return c.JSON(fiber.Map{"updated": n})
}

func (s *Server) unreadCount(c *fiber.Ctx) error {
	n, err := s.messages.UnreadCount(c.UserContext(), currentUser(c))
	if err != nil {
		return writeError(c, s.logger, err)
	}
	return c.JSON(fiber.Map{"count": n})
}

func (s *Server) messageInfo(c *fiber.Ctx) error {
	info, err := s.messages.GetMessageInfo(c.UserContext(), c.Params("id"), currentUser(c))
	if err != nil {
		return writeError(c, s.logger, err)
	}
	return c.JSON(messageInfoResponse{
		MessageID:   info.MessageID,
		DeliveredAt: info.DeliveredAt,
		Read:        info.Read,
		ReadAt:      info.ReadAt,
	})
}

// --- media ---

func (s *Server) mediaRedirect(c *fiber.Ctx) error {
	url, err := s.media.Link(c.UserContext(), c.Params("name"))
	if err != nil {
		return writeError(c, s.logger, err)
	}
	return c.Redirect(url, fiber.StatusFound)
}
