package server

import (
	"context"

	"github.com/NicolasHaas/campus/pkg/model"
	"github.com/NicolasHaas/campus/pkg/protocol"
	pb "github.com/NicolasHaas/campus/pkg/protocol/pb"
)

// notifyDeleted tells every other connection viewing the resource that it
// is gone and forgets the viewers.
func (s *Server) notifyDeleted(ctx context.Context, r *Request, kind string, id int64) {
	viewers := s.watchers.Clear(resourceKey(kind, id))
	targets := viewers[:0]
	for _, h := range viewers {
		if h.ID() != r.Conn.ID() {
			targets = append(targets, h)
		}
	}
	if len(targets) == 0 {
		return
	}
	by := ""
	if r.Session.Profile != nil {
		by = r.Session.Profile.Login
	}
	msg := newPush(protocol.OpResourceDeleted, pb.ResourceDeleted{Kind: kind, ID: id, By: by})
	fanout(ctx, targets, msg, s.registry.workers, s.metrics)
}

func (s *Server) watch(r *Request, kind string, id int64) {
	s.watchers.Watch(r.Conn, resourceKey(kind, id))
}

// ----- Library -----

func (s *Server) searchBooks(ctx context.Context, _ *Request, req pb.SearchBooksRequest) ([]model.Book, error) {
	books, err := s.services.Library.Search(ctx, req.Query, req.Limit)
	return list(books), err
}

func (s *Server) getBook(ctx context.Context, r *Request, req pb.IDRequest) (*model.Book, error) {
	b, err := s.services.Library.Book(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	s.watch(r, KindBook, b.ID)
	return b, nil
}

func (s *Server) borrowBook(ctx context.Context, r *Request, req pb.IDRequest) (*model.Loan, error) {
	return s.services.Library.Borrow(ctx, r.Session.UserID, req.ID)
}

func (s *Server) returnBook(ctx context.Context, r *Request, req pb.IDRequest) (*model.Loan, error) {
	return s.services.Library.Return(ctx, r.Session.UserID, req.ID)
}

func (s *Server) getMyLoans(ctx context.Context, r *Request, _ pb.Empty) ([]model.Loan, error) {
	loans, err := s.services.Library.Loans(ctx, r.Session.UserID)
	return list(loans), err
}

func (s *Server) addBook(ctx context.Context, _ *Request, req pb.AddBookRequest) (*model.Book, error) {
	return s.services.Library.AddBook(ctx, model.Book{
		ISBN:   req.ISBN,
		Title:  req.Title,
		Author: req.Author,
		Copies: req.Copies,
	})
}

func (s *Server) deleteBook(ctx context.Context, r *Request, req pb.IDRequest) (pb.Empty, error) {
	if err := s.services.Library.DeleteBook(ctx, req.ID); err != nil {
		return pb.Empty{}, err
	}
	s.notifyDeleted(ctx, r, KindBook, req.ID)
	return pb.Empty{}, nil
}

// ----- Store -----

func (s *Server) listProducts(ctx context.Context, _ *Request, req pb.PageRequest) ([]model.Product, error) {
	products, err := s.services.Store.Products(ctx, req.Offset, req.Limit)
	return list(products), err
}

func (s *Server) getProduct(ctx context.Context, r *Request, req pb.IDRequest) (*model.Product, error) {
	p, err := s.services.Store.Product(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	s.watch(r, KindProduct, p.ID)
	return p, nil
}

func (s *Server) addToCart(ctx context.Context, r *Request, req pb.CartRequest) ([]model.CartItem, error) {
	cart, err := s.services.Store.AddToCart(ctx, r.Session.UserID, req.ProductID, req.Quantity)
	return list(cart), err
}

// removeFromCart takes the product id.
func (s *Server) removeFromCart(ctx context.Context, r *Request, req pb.IDRequest) ([]model.CartItem, error) {
	cart, err := s.services.Store.RemoveFromCart(ctx, r.Session.UserID, req.ID)
	return list(cart), err
}

func (s *Server) getCart(ctx context.Context, r *Request, _ pb.Empty) ([]model.CartItem, error) {
	cart, err := s.services.Store.Cart(ctx, r.Session.UserID)
	return list(cart), err
}

func (s *Server) createOrder(ctx context.Context, r *Request, _ pb.Empty) (*model.Order, error) {
	order, err := s.services.Store.Checkout(ctx, r.Session.UserID)
	if err != nil {
		return nil, err
	}
	r.Conn.log.Info("order placed", "order", order.ID, "total", order.Total)
	return order, nil
}

func (s *Server) getMyOrders(ctx context.Context, r *Request, _ pb.Empty) ([]model.Order, error) {
	orders, err := s.services.Store.Orders(ctx, r.Session.UserID)
	return list(orders), err
}

func (s *Server) getBalance(ctx context.Context, r *Request, _ pb.UserRequest) (pb.BalanceResponse, error) {
	balance, err := s.services.Store.Balance(ctx, r.TargetID)
	return pb.BalanceResponse{UserID: r.TargetID, Balance: balance}, err
}

func (s *Server) rechargeBalance(ctx context.Context, r *Request, req pb.RechargeRequest) (pb.BalanceResponse, error) {
	balance, err := s.services.Store.Recharge(ctx, r.TargetID, req.Amount)
	return pb.BalanceResponse{UserID: r.TargetID, Balance: balance}, err
}

func (s *Server) addProduct(ctx context.Context, _ *Request, req pb.AddProductRequest) (*model.Product, error) {
	return s.services.Store.AddProduct(ctx, model.Product{
		Name:  req.Name,
		Price: req.Price,
		Stock: req.Stock,
	})
}

func (s *Server) deleteProduct(ctx context.Context, r *Request, req pb.IDRequest) (pb.Empty, error) {
	if err := s.services.Store.DeleteProduct(ctx, req.ID); err != nil {
		return pb.Empty{}, err
	}
	s.notifyDeleted(ctx, r, KindProduct, req.ID)
	return pb.Empty{}, nil
}

// ----- Forum -----

func (s *Server) getAllThreads(ctx context.Context, _ *Request, req pb.PageRequest) ([]model.Thread, error) {
	threads, err := s.services.Forum.Threads(ctx, req.Offset, req.Limit)
	return list(threads), err
}

func (s *Server) getThread(ctx context.Context, r *Request, req pb.ThreadRequest) (*model.Thread, error) {
	t, err := s.services.Forum.Thread(ctx, req.ID, req.Offset, req.Limit)
	if err != nil {
		return nil, err
	}
	s.watch(r, KindThread, t.ID)
	return t, nil
}

func (s *Server) createThread(ctx context.Context, r *Request, req pb.CreateThreadRequest) (*model.Thread, error) {
	return s.services.Forum.CreateThread(ctx, r.Session.UserID, req.Title, req.Body)
}

func (s *Server) replyThread(ctx context.Context, r *Request, req pb.ReplyThreadRequest) (*model.Post, error) {
	return s.services.Forum.Reply(ctx, r.Session.UserID, req.ThreadID, req.Body)
}

func (s *Server) deleteThread(ctx context.Context, r *Request, req pb.IDRequest) (pb.Empty, error) {
	if err := s.services.Forum.DeleteThread(ctx, r.Actor(), req.ID); err != nil {
		return pb.Empty{}, err
	}
	s.notifyDeleted(ctx, r, KindThread, req.ID)
	return pb.Empty{}, nil
}

// ----- Courses -----

func (s *Server) listCourses(ctx context.Context, _ *Request, _ pb.Empty) ([]model.Course, error) {
	courses, err := s.services.Courses.Courses(ctx)
	return list(courses), err
}

// getMyCourses lists enrollments for students and taught courses for
// everyone else.
func (s *Server) getMyCourses(ctx context.Context, r *Request, _ pb.Empty) ([]model.Course, error) {
	if r.Session.Role() == model.RoleStudent {
		courses, err := s.services.Courses.StudentCourses(ctx, r.Session.UserID)
		return list(courses), err
	}
	all, err := s.services.Courses.Courses(ctx)
	if err != nil {
		return nil, err
	}
	taught := []model.Course{}
	for _, c := range all {
		if c.TeacherID == r.Session.UserID {
			taught = append(taught, c)
		}
	}
	return taught, nil
}

func (s *Server) enrollCourse(ctx context.Context, r *Request, req pb.IDRequest) (pb.Empty, error) {
	return pb.Empty{}, s.services.Courses.Enroll(ctx, r.Session.UserID, req.ID)
}

func (s *Server) dropCourse(ctx context.Context, r *Request, req pb.IDRequest) (pb.Empty, error) {
	return pb.Empty{}, s.services.Courses.Drop(ctx, r.Session.UserID, req.ID)
}

func (s *Server) createCourse(ctx context.Context, r *Request, req pb.CreateCourseRequest) (*model.Course, error) {
	return s.services.Courses.CreateCourse(ctx, r.Actor(), model.Course{
		Code:      req.Code,
		Name:      req.Name,
		Capacity:  req.Capacity,
		TeacherID: req.TeacherID,
	})
}

func (s *Server) setGrade(ctx context.Context, r *Request, req pb.SetGradeRequest) (pb.Empty, error) {
	return pb.Empty{}, s.services.Courses.SetGrade(ctx, r.Actor(), req.CourseID, req.StudentID, req.Score)
}

func (s *Server) getGrades(ctx context.Context, r *Request, _ pb.UserRequest) ([]model.Grade, error) {
	grades, err := s.services.Courses.Grades(ctx, r.TargetID)
	return list(grades), err
}
