package http

import (
	"event-ticket/common/constant"
	jetsteamMock "event-ticket/common/jetstream/mocks"
	"event-ticket/model"
	"event-ticket/outbound/store"
	"fmt"
	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redismock/v9"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type OrderHttpTestSuite struct {
	suite.Suite

	Cfg     *viper.Viper
	Querier *store.Queries
	PgxMock pgxmock.PgxPoolIface

	Cache     *redis.Client
	CacheMock redismock.ClientMock

	Publisher *jetsteamMock.MockPublisher
	Validate  *validator.Validate
}

func (s *OrderHttpTestSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())

	rdb, mock := redismock.NewClientMock()
	s.Cache = rdb
	s.CacheMock = mock

	pool, err := pgxmock.NewPool()
	if err != nil {
		s.T().Fatalf("failed to create pgxmock pool: %v", err)
	}

	s.PgxMock = pool
	s.Querier = store.New(pool)

	s.Publisher = jetsteamMock.NewMockPublisher(ctrl)
	s.Validate = validator.New()

	s.Cfg = viper.New()
	s.Cfg.Set("order.payment_window", "30m")

	slog.SetLogLoggerLevel(slog.LevelDebug)
}

func (s *OrderHttpTestSuite) TearDownTest() {
	s.PgxMock.Close()

	if err := s.Cache.Close(); err != nil {
		s.T().Fatalf("failed to close redis mock: %v", err)
	}
}

func TestOrderHttpTestSuite(t *testing.T) {
	suite.Run(t, new(OrderHttpTestSuite))
}

func (s *OrderHttpTestSuite) TestCreate() {
	fixedTime := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	emailLockKey := fmt.Sprintf(constant.OrderEmailLock, "john@example.com")

	holdColumns := []string{
		"id", "event_id", "event_date_id", "ticket_type_id", "quantity", "owner_id", "status", "created_at", "expires_at",
	}
	holdRow := func(quantity int32, ownerID string) *pgxmock.Rows {
		return pgxmock.NewRows(holdColumns).
			AddRow("01J0000000000000000000HOLD", int64(1), int64(2), int64(3), quantity, ownerID,
				model.HoldStatusActive, fixedTime.Add(-time.Minute), fixedTime.Add(9*time.Minute))
	}

	findActiveHoldQuery := `(?s)SELECT id, event_id, event_date_id, ticket_type_id, quantity, owner_id, status, created_at, expires_at\s+FROM holds\s+WHERE id = \$1 AND status = 'active' AND expires_at > \$2\s+FOR UPDATE`
	findHoldQuery := `(?s)SELECT id, event_id, event_date_id, ticket_type_id, quantity, owner_id, status, created_at, expires_at\s+FROM holds\s+WHERE id = \$1$`
	priceQuery := `SELECT price_cents FROM ticket_types WHERE id = \$1`
	insertTicketQuery := `(?s)INSERT INTO tickets \(id, event_id, event_date_ids, ticket_type_id, customer_id, customer_name,.+`

	validBody := `{
		"owner_id": "cust-1",
		"items": [{"hold_id": "01J0000000000000000000HOLD"}],
		"name": "John Doe",
		"email": "john@example.com",
		"phone": "+5511999999999"
	}`

	tests := []struct {
		name           string
		reqBody        string
		setupMock      func()
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "invalid json",
			reqBody:        `{invalid`,
			setupMock:      func() {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"Invalid request"}`,
		},
		{
			name:           "validation error - missing email",
			reqBody:        `{"owner_id": "cust-1", "items": [{"hold_id": "01J0000000000000000000HOLD"}], "name": "John Doe", "phone": "+5511999999999"}`,
			setupMock:      func() {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"Validation failed","data":{"Email":"required"}}`,
		},
		{
			name:    "checkout already in flight for email",
			reqBody: validBody,
			setupMock: func() {
				s.CacheMock.ExpectSetNX(emailLockKey, true, constant.OrderEmailLockDefaultTTL).SetVal(false)
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   `{"error":"Checkout already in progress for this email"}`,
		},
		{
			name:    "hold not found",
			reqBody: validBody,
			setupMock: func() {
				s.CacheMock.ExpectSetNX(emailLockKey, true, constant.OrderEmailLockDefaultTTL).SetVal(true)
				s.PgxMock.ExpectBegin()
				s.PgxMock.ExpectQuery(findActiveHoldQuery).
					WithArgs("01J0000000000000000000HOLD", fixedTime).
					WillReturnRows(pgxmock.NewRows(holdColumns))
				s.PgxMock.ExpectQuery(findHoldQuery).
					WithArgs("01J0000000000000000000HOLD").
					WillReturnRows(pgxmock.NewRows(holdColumns))
				s.PgxMock.ExpectRollback()
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `{"error":"hold not found","code":"HOLD_NOT_FOUND"}`,
		},
		{
			name:    "hold expired",
			reqBody: validBody,
			setupMock: func() {
				s.CacheMock.ExpectSetNX(emailLockKey, true, constant.OrderEmailLockDefaultTTL).SetVal(true)
				s.PgxMock.ExpectBegin()
				s.PgxMock.ExpectQuery(findActiveHoldQuery).
					WithArgs("01J0000000000000000000HOLD", fixedTime).
					WillReturnRows(pgxmock.NewRows(holdColumns))
				s.PgxMock.ExpectQuery(findHoldQuery).
					WithArgs("01J0000000000000000000HOLD").
					WillReturnRows(pgxmock.NewRows(holdColumns).
						AddRow("01J0000000000000000000HOLD", int64(1), int64(2), int64(3), int32(2), "cust-1",
							model.HoldStatusActive, fixedTime.Add(-11*time.Minute), fixedTime.Add(-time.Minute)))
				s.PgxMock.ExpectRollback()
			},
			expectedStatus: http.StatusGone,
			expectedBody:   `{"error":"hold has expired","code":"HOLD_EXPIRED"}`,
		},
		{
			name:    "hold owned by someone else",
			reqBody: validBody,
			setupMock: func() {
				s.CacheMock.ExpectSetNX(emailLockKey, true, constant.OrderEmailLockDefaultTTL).SetVal(true)
				s.PgxMock.ExpectBegin()
				s.PgxMock.ExpectQuery(findActiveHoldQuery).
					WithArgs("01J0000000000000000000HOLD", fixedTime).
					WillReturnRows(holdRow(2, "cust-other"))
				s.PgxMock.ExpectRollback()
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `{"error":"hold not found","code":"HOLD_NOT_FOUND"}`,
		},
		{
			name:    "multi-date pass naming a foreign date is rejected",
			reqBody: `{"owner_id": "cust-1", "items": [{"hold_id": "01J0000000000000000000HOLD", "event_date_ids": [2, 99]}], "name": "John Doe", "email": "john@example.com", "phone": "+5511999999999"}`,
			setupMock: func() {
				s.CacheMock.ExpectSetNX(emailLockKey, true, constant.OrderEmailLockDefaultTTL).SetVal(true)
				s.PgxMock.ExpectBegin()
				s.PgxMock.ExpectQuery(findActiveHoldQuery).
					WithArgs("01J0000000000000000000HOLD", fixedTime).
					WillReturnRows(holdRow(1, "cust-1"))
				s.PgxMock.ExpectQuery(`SELECT DISTINCT event_date_id FROM inventory_counters WHERE event_id = \$1 ORDER BY event_date_id`).
					WithArgs(int64(1)).
					WillReturnRows(pgxmock.NewRows([]string{"event_date_id"}).AddRow(int64(2)).AddRow(int64(4)))
				s.PgxMock.ExpectRollback()
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"event date does not belong to the event","code":"UNKNOWN_EVENT_DATE"}`,
		},
		{
			name:    "multi-date pass omitting the hold's date is rejected",
			reqBody: `{"owner_id": "cust-1", "items": [{"hold_id": "01J0000000000000000000HOLD", "event_date_ids": [4]}], "name": "John Doe", "email": "john@example.com", "phone": "+5511999999999"}`,
			setupMock: func() {
				s.CacheMock.ExpectSetNX(emailLockKey, true, constant.OrderEmailLockDefaultTTL).SetVal(true)
				s.PgxMock.ExpectBegin()
				s.PgxMock.ExpectQuery(findActiveHoldQuery).
					WithArgs("01J0000000000000000000HOLD", fixedTime).
					WillReturnRows(holdRow(1, "cust-1"))
				s.PgxMock.ExpectQuery(`SELECT DISTINCT event_date_id FROM inventory_counters WHERE event_id = \$1 ORDER BY event_date_id`).
					WithArgs(int64(1)).
					WillReturnRows(pgxmock.NewRows([]string{"event_date_id"}).AddRow(int64(2)).AddRow(int64(4)))
				s.PgxMock.ExpectRollback()
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"event_date_ids must include the hold's date"}`,
		},
		{
			name:    "multi-date pass covers every named date",
			reqBody: `{"owner_id": "cust-1", "items": [{"hold_id": "01J0000000000000000000HOLD", "event_date_ids": [2, 4]}], "name": "John Doe", "email": "john@example.com", "phone": "+5511999999999"}`,
			setupMock: func() {
				s.CacheMock.ExpectSetNX(emailLockKey, true, constant.OrderEmailLockDefaultTTL).SetVal(true)
				s.PgxMock.ExpectBegin()
				s.PgxMock.ExpectQuery(findActiveHoldQuery).
					WithArgs("01J0000000000000000000HOLD", fixedTime).
					WillReturnRows(holdRow(1, "cust-1"))
				s.PgxMock.ExpectQuery(`SELECT DISTINCT event_date_id FROM inventory_counters WHERE event_id = \$1 ORDER BY event_date_id`).
					WithArgs(int64(1)).
					WillReturnRows(pgxmock.NewRows([]string{"event_date_id"}).AddRow(int64(2)).AddRow(int64(4)))
				s.PgxMock.ExpectQuery(priceQuery).
					WithArgs(int64(3)).
					WillReturnRows(pgxmock.NewRows([]string{"price_cents"}).AddRow(int64(15000)))
				s.PgxMock.ExpectExec(insertTicketQuery).
					WithArgs(pgxmock.AnyArg(), int64(1), []int64{2, 4}, int64(3), "cust-1", "John Doe",
						"john@example.com", "+5511999999999", int64(15000), pgxmock.AnyArg(), pgxmock.AnyArg(), (*string)(nil),
						pgxmock.AnyArg(), fixedTime.Add(30*time.Minute), model.TicketStatusPending, pgxmock.AnyArg(), fixedTime, fixedTime).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
				s.PgxMock.ExpectCommit()
				s.Publisher.EXPECT().Publish(
					gomock.Any(),
					constant.SubjectTicketNotification,
					gomock.Any(),
				).Return(nil, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"status":"PENDING"`,
		},
		{
			name:    "success issues one pending ticket per held unit",
			reqBody: validBody,
			setupMock: func() {
				s.CacheMock.ExpectSetNX(emailLockKey, true, constant.OrderEmailLockDefaultTTL).SetVal(true)
				s.PgxMock.ExpectBegin()
				s.PgxMock.ExpectQuery(findActiveHoldQuery).
					WithArgs("01J0000000000000000000HOLD", fixedTime).
					WillReturnRows(holdRow(2, "cust-1"))
				s.PgxMock.ExpectQuery(priceQuery).
					WithArgs(int64(3)).
					WillReturnRows(pgxmock.NewRows([]string{"price_cents"}).AddRow(int64(15000)))
				s.PgxMock.ExpectExec(insertTicketQuery).
					WithArgs(pgxmock.AnyArg(), int64(1), []int64{2}, int64(3), "cust-1", "John Doe",
						"john@example.com", "+5511999999999", int64(15000), pgxmock.AnyArg(), pgxmock.AnyArg(), (*string)(nil),
						pgxmock.AnyArg(), fixedTime.Add(30*time.Minute), model.TicketStatusPending, pgxmock.AnyArg(), fixedTime, fixedTime).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
				s.PgxMock.ExpectExec(insertTicketQuery).
					WithArgs(pgxmock.AnyArg(), int64(1), []int64{2}, int64(3), "cust-1", "John Doe",
						"john@example.com", "+5511999999999", int64(15000), pgxmock.AnyArg(), pgxmock.AnyArg(), (*string)(nil),
						pgxmock.AnyArg(), fixedTime.Add(30*time.Minute), model.TicketStatusPending, pgxmock.AnyArg(), fixedTime, fixedTime).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
				s.PgxMock.ExpectCommit()
				s.Publisher.EXPECT().Publish(
					gomock.Any(),
					constant.SubjectTicketNotification,
					gomock.Any(),
				).Return(nil, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"status":"PENDING"`,
		},
	}

	for _, tc := range tests {
		s.Run(tc.name, func() {
			orderHttp := RegisterOrderHttp(
				http.NewServeMux(),
				s.Cfg,
				s.PgxMock,
				s.Querier,
				s.Cache,
				s.Publisher,
				s.Validate,
			)
			orderHttp.TimeNow = func() time.Time { return fixedTime }

			tc.setupMock()

			req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(tc.reqBody))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			orderHttp.create(w, req)

			s.Equal(tc.expectedStatus, w.Code)
			s.Contains(w.Body.String(), tc.expectedBody)
			s.NoError(s.PgxMock.ExpectationsWereMet())
			s.NoError(s.CacheMock.ExpectationsWereMet())
		})
	}
}
