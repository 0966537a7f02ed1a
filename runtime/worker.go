package runtime

import (
	"net/rpc"

	goplugin "github.com/hashicorp/go-plugin"
)

// Handshake guards against launching a binary that is not a worker plugin.
var Handshake = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "TASKFORCE_PLUGIN",
	MagicCookieValue: "taskforce-worker",
}

// PluginMap names the plugins a worker binary can serve.
var PluginMap = map[string]goplugin.Plugin{
	"worker": &WorkerPlugin{},
}

// Worker is the interface a worker binary exposes over the plugin
// connection.
type Worker interface {
	// Init hands the worker its agent identity and role.
	Init(agentID, role string) error

	// Suspend tells the worker to stop pulling tasks until Wake.
	Suspend() error

	// Wake reverses Suspend.
	Wake() error
}

// InitArgs is the rpc argument struct for Worker.Init.
type InitArgs struct {
	AgentID string
	Role    string
}

// WorkerPlugin implements goplugin.Plugin for the worker interface over
// net/rpc.
type WorkerPlugin struct {
	Impl Worker
}

func (p *WorkerPlugin) Server(*goplugin.MuxBroker) (interface{}, error) {
	return &workerServer{impl: p.Impl}, nil
}

func (p *WorkerPlugin) Client(_ *goplugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &workerClient{client: c}, nil
}

type workerServer struct {
	impl Worker
}

func (s *workerServer) Init(args *InitArgs, _ *struct{}) error {
	return s.impl.Init(args.AgentID, args.Role)
}

func (s *workerServer) Suspend(_ struct{}, _ *struct{}) error {
	return s.impl.Suspend()
}

func (s *workerServer) Wake(_ struct{}, _ *struct{}) error {
	return s.impl.Wake()
}

type workerClient struct {
	client *rpc.Client
}

func (c *workerClient) Init(agentID, role string) error {
	return c.client.Call("Plugin.Init", &InitArgs{AgentID: agentID, Role: role}, new(struct{}))
}

func (c *workerClient) Suspend() error {
	return c.client.Call("Plugin.Suspend", struct{}{}, new(struct{}))
}

func (c *workerClient) Wake() error {
	return c.client.Call("Plugin.Wake", struct{}{}, new(struct{}))
}

// ServeWorker is the entrypoint a worker binary calls from its main.
func ServeWorker(impl Worker) {
	goplugin.Serve(&goplugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]goplugin.Plugin{
			"worker": &WorkerPlugin{Impl: impl},
		},
	})
}
