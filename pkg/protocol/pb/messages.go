// Package pb holds the typed payloads carried inside protocol.Message.
// Each request type is decoded once at the dispatch boundary; handlers never
// see raw JSON.
package pb

import (
	"errors"
	"strings"
	"time"

	"github.com/NicolasHaas/campus/pkg/model"
)

var (
	errIDRequired       = errors.New("id must be positive")
	errCredentials      = errors.New("id and password are required")
	errQuantity         = errors.New("quantity must be positive")
	errAmount           = errors.New("amount must be positive")
	errAnnouncementText = errors.New("announcement text must be 1-500 characters")
	errPage             = errors.New("offset and limit must not be negative")
)

// Empty is the payload of opcodes that carry no arguments.
type Empty struct{}

// IDRequest addresses one resource by id (book, product, thread, course).
type IDRequest struct {
	ID int64 `json:"id"`
}

func (r IDRequest) Validate() error {
	if r.ID <= 0 {
		return errIDRequired
	}
	return nil
}

// PageRequest pages through a listing. Zero Limit means the server default.
type PageRequest struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// UserRequest targets a user. Zero UserID means the caller.
type UserRequest struct {
	UserID int64 `json:"user_id"`
}

func (r UserRequest) TargetUserID() int64 { return r.UserID }

// ----- Session -----

type LoginRequest struct {
	ID       string `json:"id"` // login / account number
	Password string `json:"password"`
}

func (r LoginRequest) Validate() error {
	if strings.TrimSpace(r.ID) == "" || r.Password == "" {
		return errCredentials
	}
	return nil
}

type RegisterRequest struct {
	ID          string `json:"id"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

func (r RegisterRequest) Validate() error {
	if err := model.ValidateLogin(r.ID); err != nil {
		return err
	}
	if err := model.ValidatePassword(r.Password); err != nil {
		return err
	}
	return model.ValidateDisplayName(r.DisplayName)
}

type HeartbeatResponse struct {
	ServerTime int64  `json:"server_time"`
	Version    string `json:"version"`
}

// ----- Accounts -----

type UpdateProfileRequest struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
}

func (r UpdateProfileRequest) TargetUserID() int64 { return r.UserID }

func (r UpdateProfileRequest) Validate() error {
	return model.ValidateDisplayName(r.DisplayName)
}

type ChangePasswordRequest struct {
	UserID      int64  `json:"user_id"`
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (r ChangePasswordRequest) TargetUserID() int64 { return r.UserID }

func (r ChangePasswordRequest) Validate() error {
	return model.ValidatePassword(r.NewPassword)
}

type OnlineUser struct {
	UserID      int64      `json:"user_id"`
	Login       string     `json:"login"`
	DisplayName string     `json:"display_name"`
	Role        model.Role `json:"role"`
	Remote      string     `json:"remote"`
	Since       time.Time  `json:"since"`
}

type AnnouncementRequest struct {
	Text string `json:"text"`
}

func (r AnnouncementRequest) Validate() error {
	if n := len(strings.TrimSpace(r.Text)); n == 0 || n > 500 {
		return errAnnouncementText
	}
	return nil
}

type AnnouncementResponse struct {
	Delivered int `json:"delivered"`
}

// ----- Library -----

type SearchBooksRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type AddBookRequest struct {
	ISBN   string `json:"isbn"`
	Title  string `json:"title"`
	Author string `json:"author"`
	Copies int    `json:"copies"`
}

// ----- Store -----

type CartRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

func (r CartRequest) Validate() error {
	if r.ProductID <= 0 {
		return errIDRequired
	}
	if r.Quantity <= 0 {
		return errQuantity
	}
	return nil
}

type BalanceResponse struct {
	UserID  int64 `json:"user_id"`
	Balance int64 `json:"balance"`
}

type RechargeRequest struct {
	UserID int64 `json:"user_id"`
	Amount int64 `json:"amount"`
}

func (r RechargeRequest) TargetUserID() int64 { return r.UserID }

func (r RechargeRequest) Validate() error {
	if r.Amount <= 0 {
		return errAmount
	}
	return nil
}

type AddProductRequest struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
	Stock int    `json:"stock"`
}

// ----- Forum -----

type CreateThreadRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (r CreateThreadRequest) Validate() error {
	return model.ValidateThread(r.Title, r.Body)
}

// ThreadRequest reads one thread and a page of its replies, oldest first.
// Zero Limit means model.MaxPostsPerPage.
type ThreadRequest struct {
	ID     int64 `json:"id"`
	Offset int   `json:"offset"`
	Limit  int   `json:"limit"`
}

func (r ThreadRequest) Validate() error {
	if r.ID <= 0 {
		return errIDRequired
	}
	if r.Offset < 0 || r.Limit < 0 {
		return errPage
	}
	return nil
}

type ReplyThreadRequest struct {
	ThreadID int64  `json:"thread_id"`
	Body     string `json:"body"`
}

func (r ReplyThreadRequest) Validate() error {
	if r.ThreadID <= 0 {
		return errIDRequired
	}
	return model.ValidatePost(r.Body)
}

// ----- Courses -----

type CreateCourseRequest struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	Capacity  int    `json:"capacity"`
	TeacherID int64  `json:"teacher_id"` // admins may assign; zero means the caller
}

type SetGradeRequest struct {
	CourseID  int64 `json:"course_id"`
	StudentID int64 `json:"student_id"`
	Score     int   `json:"score"`
}

func (r SetGradeRequest) Validate() error {
	if r.CourseID <= 0 || r.StudentID <= 0 {
		return errIDRequired
	}
	if r.Score < 0 || r.Score > model.MaxScore {
		return model.ErrScoreRange
	}
	return nil
}

// ----- Pushes -----

type Announcement struct {
	From   string    `json:"from"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

type ResourceDeleted struct {
	Kind string `json:"kind"` // "book", "product", "thread", "course"
	ID   int64  `json:"id"`
	By   string `json:"by"`
}

type ForcedLogout struct {
	Reason string `json:"reason"`
}
