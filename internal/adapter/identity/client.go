package identity

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/simaogato/treasury-backend/internal/adapter/grpc/jsoncodec"
	"github.com/simaogato/treasury-backend/internal/domain"
)

// ListControllersMethod is the full method name served by the identity oracle
const ListControllersMethod = "/treasury.identity.v1.ControllerOracle/ListControllers"

// ListControllersRequest asks for the controllers of one agent
type ListControllersRequest struct {
	AgentID domain.Principal `json:"agent_id"`
}

// ListControllersReply is the authorized-operator set of the agent
type ListControllersReply struct {
	Controllers []domain.Principal `json:"controllers"`
}

// Client implements domain.ControllerOracle against the identity oracle
type Client struct {
	conn    grpc.ClientConnInterface
	agentID domain.Principal
	timeout time.Duration
}

var _ domain.ControllerOracle = (*Client)(nil)

// NewClient creates an oracle client asking for the controllers of agentID
func NewClient(conn grpc.ClientConnInterface, agentID domain.Principal, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		conn:    conn,
		agentID: agentID,
		timeout: timeout,
	}
}

// Controllers queries the oracle. Errors carry the oracle's raw error text.
func (c *Client) Controllers(ctx context.Context) ([]domain.Principal, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reply ListControllersReply
	err := c.conn.Invoke(ctx, ListControllersMethod, &ListControllersRequest{AgentID: c.agentID}, &reply, jsoncodec.CallOption())
	if err != nil {
		return nil, &domain.OracleError{Message: status.Convert(err).Message()}
	}

	return reply.Controllers, nil
}
