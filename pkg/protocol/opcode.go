package protocol

import "sort"

// Opcode identifies a request, reply or push message kind.
type Opcode string

// Kind classifies an opcode by who sends it.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindRequest      // client -> server, answered 1:1
	KindReply        // server -> client only, in answer to some request
	KindPush         // server -> client without a preceding request
)

// ----- Session -----
const (
	OpLogin     Opcode = "LOGIN"
	OpLogout    Opcode = "LOGOUT"
	OpHeartbeat Opcode = "HEARTBEAT"
	OpRegister  Opcode = "REGISTER"
)

// ----- Accounts -----
const (
	OpGetProfile       Opcode = "GET_PROFILE"
	OpUpdateProfile    Opcode = "UPDATE_PROFILE"
	OpChangePassword   Opcode = "CHANGE_PASSWORD"
	OpListUsers        Opcode = "LIST_USERS"
	OpDeleteUser       Opcode = "DELETE_USER"
	OpListOnline       Opcode = "LIST_ONLINE"
	OpSendAnnouncement Opcode = "SEND_ANNOUNCEMENT"
)

// ----- Library -----
const (
	OpSearchBooks Opcode = "SEARCH_BOOKS"
	OpGetBook     Opcode = "GET_BOOK"
	OpBorrowBook  Opcode = "BORROW_BOOK"
	OpReturnBook  Opcode = "RETURN_BOOK"
	OpGetMyLoans  Opcode = "GET_MY_LOANS"
	OpAddBook     Opcode = "ADD_BOOK"
	OpDeleteBook  Opcode = "DELETE_BOOK"
)

// ----- Store -----
const (
	OpListProducts    Opcode = "LIST_PRODUCTS"
	OpGetProduct      Opcode = "GET_PRODUCT"
	OpAddToCart       Opcode = "ADD_TO_CART"
	OpRemoveFromCart  Opcode = "REMOVE_FROM_CART"
	OpGetCart         Opcode = "GET_CART"
	OpCreateOrder     Opcode = "CREATE_ORDER"
	OpGetMyOrders     Opcode = "GET_MY_ORDERS"
	OpGetBalance      Opcode = "GET_BALANCE"
	OpRechargeBalance Opcode = "RECHARGE_BALANCE"
	OpAddProduct      Opcode = "ADD_PRODUCT"
	OpDeleteProduct   Opcode = "DELETE_PRODUCT"
)

// ----- Forum -----
const (
	OpGetAllThreads Opcode = "GET_ALL_THREADS"
	OpGetThread     Opcode = "GET_THREAD"
	OpCreateThread  Opcode = "CREATE_THREAD"
	OpReplyThread   Opcode = "REPLY_THREAD"
	OpDeleteThread  Opcode = "DELETE_THREAD"
)

// ----- Courses -----
const (
	OpListCourses  Opcode = "LIST_COURSES"
	OpGetMyCourses Opcode = "GET_MY_COURSES"
	OpEnrollCourse Opcode = "ENROLL_COURSE"
	OpDropCourse   Opcode = "DROP_COURSE"
	OpCreateCourse Opcode = "CREATE_COURSE"
	OpSetGrade     Opcode = "SET_GRADE"
	OpGetGrades    Opcode = "GET_GRADES"
)

// ----- Replies and pushes -----
const (
	OpLoginSuccess       Opcode = "LOGIN_SUCCESS"
	OpLoginFailed        Opcode = "LOGIN_FAILED"
	OpUnsupportedRequest Opcode = "UNSUPPORTED_REQUEST"

	OpAnnouncement    Opcode = "ANNOUNCEMENT"
	OpResourceDeleted Opcode = "RESOURCE_DELETED"
	OpForcedLogout    Opcode = "FORCED_LOGOUT"
)

var kinds = map[Opcode]Kind{
	OpLogin: KindRequest, OpLogout: KindRequest, OpHeartbeat: KindRequest, OpRegister: KindRequest,

	OpGetProfile: KindRequest, OpUpdateProfile: KindRequest, OpChangePassword: KindRequest,
	OpListUsers: KindRequest, OpDeleteUser: KindRequest, OpListOnline: KindRequest,
	OpSendAnnouncement: KindRequest,

	OpSearchBooks: KindRequest, OpGetBook: KindRequest, OpBorrowBook: KindRequest,
	OpReturnBook: KindRequest, OpGetMyLoans: KindRequest, OpAddBook: KindRequest,
	OpDeleteBook: KindRequest,

	OpListProducts: KindRequest, OpGetProduct: KindRequest, OpAddToCart: KindRequest,
	OpRemoveFromCart: KindRequest, OpGetCart: KindRequest, OpCreateOrder: KindRequest,
	OpGetMyOrders: KindRequest, OpGetBalance: KindRequest, OpRechargeBalance: KindRequest,
	OpAddProduct: KindRequest, OpDeleteProduct: KindRequest,

	OpGetAllThreads: KindRequest, OpGetThread: KindRequest, OpCreateThread: KindRequest,
	OpReplyThread: KindRequest, OpDeleteThread: KindRequest,

	OpListCourses: KindRequest, OpGetMyCourses: KindRequest, OpEnrollCourse: KindRequest,
	OpDropCourse: KindRequest, OpCreateCourse: KindRequest, OpSetGrade: KindRequest,
	OpGetGrades: KindRequest,

	OpLoginSuccess: KindReply, OpLoginFailed: KindReply, OpUnsupportedRequest: KindReply,

	OpAnnouncement: KindPush, OpResourceDeleted: KindPush, OpForcedLogout: KindPush,
}

// Kind returns the opcode's classification, KindUnknown if it is not part
// of the protocol (e.g. sent by a mismatched client version).
func (o Opcode) Kind() Kind {
	return kinds[o]
}

// IsRequest reports whether clients may send this opcode.
func (o Opcode) IsRequest() bool { return o.Kind() == KindRequest }

// IsPush reports whether this opcode is a server-initiated notification.
func (o Opcode) IsPush() bool { return o.Kind() == KindPush }

// RequestOpcodes returns every request opcode, sorted.
func RequestOpcodes() []Opcode {
	ops := make([]Opcode, 0, len(kinds))
	for op, k := range kinds {
		if k == KindRequest {
			ops = append(ops, op)
		}
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}
