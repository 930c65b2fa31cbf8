package server

import (
	"github.com/NicolasHaas/campus/pkg/model"
	"github.com/NicolasHaas/campus/pkg/protocol"
	"github.com/NicolasHaas/campus/pkg/rbac"
)

var (
	adminOnly   = rbac.RequireRole(model.RoleAdmin)
	teacherOnly = rbac.RequireRole(model.RoleTeacher)
	studentOnly = rbac.RequireRole(model.RoleStudent)
)

// routes is the dispatch table: one entry per request opcode.
func (s *Server) routes() []Route {
	return []Route{
		// Session
		{Op: protocol.OpLogin, Rule: rbac.Public, Handler: s.handleLogin},
		{Op: protocol.OpLogout, Rule: rbac.Authenticated, Handler: s.handleLogout},
		{Op: protocol.OpHeartbeat, Rule: rbac.Public, Handler: handle(s.heartbeat)},
		{Op: protocol.OpRegister, Rule: rbac.Public, Handler: handleCreated(s.register)},

		// Accounts
		{Op: protocol.OpGetProfile, Rule: rbac.SelfOrAdmin, Handler: handle(s.getProfile)},
		{Op: protocol.OpUpdateProfile, Rule: rbac.SelfOrAdmin, Handler: handle(s.updateProfile)},
		{Op: protocol.OpChangePassword, Rule: rbac.SelfOrAdmin, Handler: handle(s.changePassword)},
		{Op: protocol.OpListUsers, Rule: adminOnly, Handler: handle(s.listUsers)},
		{Op: protocol.OpDeleteUser, Rule: adminOnly, Handler: handle(s.deleteUser)},
		{Op: protocol.OpListOnline, Rule: adminOnly, Handler: handle(s.listOnline)},
		{Op: protocol.OpSendAnnouncement, Rule: adminOnly, Handler: handle(s.sendAnnouncement)},

		// Library
		{Op: protocol.OpSearchBooks, Rule: rbac.Authenticated, Handler: handle(s.searchBooks)},
		{Op: protocol.OpGetBook, Rule: rbac.Authenticated, Handler: handle(s.getBook)},
		{Op: protocol.OpBorrowBook, Rule: rbac.Authenticated, Handler: handle(s.borrowBook)},
		{Op: protocol.OpReturnBook, Rule: rbac.Authenticated, Handler: handle(s.returnBook)},
		{Op: protocol.OpGetMyLoans, Rule: rbac.Authenticated, Handler: handle(s.getMyLoans)},
		{Op: protocol.OpAddBook, Rule: adminOnly, Handler: handleCreated(s.addBook)},
		{Op: protocol.OpDeleteBook, Rule: adminOnly, Handler: handle(s.deleteBook)},

		// Store
		{Op: protocol.OpListProducts, Rule: rbac.Authenticated, Handler: handle(s.listProducts)},
		{Op: protocol.OpGetProduct, Rule: rbac.Authenticated, Handler: handle(s.getProduct)},
		{Op: protocol.OpAddToCart, Rule: rbac.Authenticated, Handler: handle(s.addToCart)},
		{Op: protocol.OpRemoveFromCart, Rule: rbac.Authenticated, Handler: handle(s.removeFromCart)},
		{Op: protocol.OpGetCart, Rule: rbac.Authenticated, Handler: handle(s.getCart)},
		{Op: protocol.OpCreateOrder, Rule: rbac.Authenticated, Handler: handleCreated(s.createOrder)},
		{Op: protocol.OpGetMyOrders, Rule: rbac.Authenticated, Handler: handle(s.getMyOrders)},
		{Op: protocol.OpGetBalance, Rule: rbac.SelfOrAdmin, Handler: handle(s.getBalance)},
		{Op: protocol.OpRechargeBalance, Rule: rbac.SelfOrAdmin, Handler: handle(s.rechargeBalance)},
		{Op: protocol.OpAddProduct, Rule: adminOnly, Handler: handleCreated(s.addProduct)},
		{Op: protocol.OpDeleteProduct, Rule: adminOnly, Handler: handle(s.deleteProduct)},

		// Forum
		{Op: protocol.OpGetAllThreads, Rule: rbac.Authenticated, Handler: handle(s.getAllThreads)},
		{Op: protocol.OpGetThread, Rule: rbac.Authenticated, Handler: handle(s.getThread)},
		{Op: protocol.OpCreateThread, Rule: rbac.Authenticated, Handler: handleCreated(s.createThread)},
		{Op: protocol.OpReplyThread, Rule: rbac.Authenticated, Handler: handleCreated(s.replyThread)},
		{Op: protocol.OpDeleteThread, Rule: rbac.Authenticated, Handler: handle(s.deleteThread)},

		// Courses
		{Op: protocol.OpListCourses, Rule: rbac.Authenticated, Handler: handle(s.listCourses)},
		{Op: protocol.OpGetMyCourses, Rule: rbac.Authenticated, Handler: handle(s.getMyCourses)},
		{Op: protocol.OpEnrollCourse, Rule: studentOnly, Handler: handle(s.enrollCourse)},
		{Op: protocol.OpDropCourse, Rule: studentOnly, Handler: handle(s.dropCourse)},
		{Op: protocol.OpCreateCourse, Rule: teacherOnly, Handler: handleCreated(s.createCourse)},
		{Op: protocol.OpSetGrade, Rule: teacherOnly, Handler: handle(s.setGrade)},
		{Op: protocol.OpGetGrades, Rule: rbac.SelfOrAdmin, Handler: handle(s.getGrades)},
	}
}
