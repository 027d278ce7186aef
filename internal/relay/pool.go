package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zapline/zapline/internal/pkg/queue"
	"github.com/zapline/zapline/internal/storage"
	"github.com/zapline/zapline/internal/storage/model"
)

// Pool é a varredura de reenvio: consome jobs de mensagens cujo
// encaminhamento esgotou os retries síncronos e tenta de novo a perna que
// falhou. Mensagens já entregues entre o enqueue e o consumo são puladas.
type Pool struct {
	queue         queue.Queue
	messages      storage.MessageRepository
	conversations storage.ConversationRepository
	contacts      storage.ContactRepository
	bindings      storage.BindingRepository
	inbound       *Inbound
	outbound      *Outbound
	log           *zap.Logger

	numWorkers int
	taskChan   chan *queue.Job
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

type PoolOptions struct {
	Queue         queue.Queue
	Messages      storage.MessageRepository
	Conversations storage.ConversationRepository
	Contacts      storage.ContactRepository
	Bindings      storage.BindingRepository
	Inbound       *Inbound
	Outbound      *Outbound
	Logger        *zap.Logger
	NumWorkers    int
}

func NewPool(opts PoolOptions) *Pool {
	workers := opts.NumWorkers
	if workers <= 0 {
		workers = 4
	}
	return &Pool{
		queue:         opts.Queue,
		messages:      opts.Messages,
		conversations: opts.Conversations,
		contacts:      opts.Contacts,
		bindings:      opts.Bindings,
		inbound:       opts.Inbound,
		outbound:      opts.Outbound,
		log:           opts.Logger,
		numWorkers:    workers,
		taskChan:      make(chan *queue.Job, workers*2),
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.log.Info("relay pool: iniciando", zap.Int("workers", p.numWorkers))

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.runWorker(i)
	}

	p.wg.Add(1)
	go p.runDispatcher()
}

func (p *Pool) Stop() {
	p.log.Info("relay pool: encerrando")
	p.cancel()
	p.wg.Wait()
	close(p.taskChan)
	p.log.Info("relay pool: encerrada")
}

func (p *Pool) runDispatcher() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		default:
			job, err := p.queue.Dequeue(p.ctx, 1*time.Second)
			if err != nil {
				if p.ctx.Err() != nil {
					return
				}
				p.log.Error("relay pool: erro ao desenfileirar", zap.Error(err))
				continue
			}
			if job == nil {
				continue
			}

			select {
			case p.taskChan <- job:
			case <-p.ctx.Done():
				return
			case <-time.After(5 * time.Second):
				p.log.Warn("relay pool: taskChan cheio, descartando job", zap.String("jobId", job.ID))
			}
		}
	}
}

func (p *Pool) runWorker(id int) {
	defer p.wg.Done()

	p.log.Info("relay pool: worker iniciado", zap.Int("workerId", id))

	for {
		select {
		case <-p.ctx.Done():
			p.log.Info("relay pool: worker encerrando", zap.Int("workerId", id))
			return
		case job := <-p.taskChan:
			if job == nil {
				return
			}
			p.processJob(p.ctx, id, job)
		}
	}
}

func (p *Pool) processJob(ctx context.Context, workerID int, job *queue.Job) {
	p.log.Debug("relay pool: processando job",
		zap.Int("workerId", workerID),
		zap.String("jobId", job.ID),
		zap.String("message", job.MessageID),
	)

	msg, err := p.messages.GetByID(ctx, job.MessageID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			p.log.Warn("relay pool: mensagem do job não existe mais", zap.String("message", job.MessageID))
			return
		}
		p.log.Error("relay pool: carregar mensagem", zap.String("message", job.MessageID), zap.Error(err))
		return
	}
	if msg.Status == model.DeliverySent || msg.Status == model.DeliveryDelivered {
		// Outro caminho entregou antes da varredura chegar aqui.
		return
	}

	conv, err := p.conversations.GetByID(ctx, msg.ConversationID)
	if err != nil {
		p.log.Error("relay pool: carregar conversa", zap.String("conversation", msg.ConversationID), zap.Error(err))
		return
	}

	switch job.Direction {
	case "in":
		p.retryInbound(ctx, msg, conv)
	case "out":
		if err := p.outbound.Forward(ctx, msg, conv); err != nil {
			p.log.Error("relay pool: reenvio de saída", zap.String("message", msg.ID), zap.Error(err))
		}
	default:
		p.log.Warn("relay pool: job com direção desconhecida", zap.String("direction", job.Direction))
	}
}

func (p *Pool) retryInbound(ctx context.Context, msg model.Message, conv model.Conversation) {
	contact, err := p.contacts.GetByID(ctx, conv.ContactID)
	if err != nil {
		p.log.Error("relay pool: carregar contato", zap.String("contact", conv.ContactID), zap.Error(err))
		return
	}
	binding, err := p.bindings.GetByInstance(ctx, conv.InstanceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			p.log.Warn("relay pool: instância perdeu o vínculo, reenvio abandonado",
				zap.String("instance", conv.InstanceID),
				zap.String("message", msg.ID),
			)
			return
		}
		p.log.Error("relay pool: carregar vínculo", zap.String("instance", conv.InstanceID), zap.Error(err))
		return
	}
	if err := p.inbound.Forward(ctx, msg, conv, contact, binding.LineID); err != nil {
		p.log.Error("relay pool: reenvio de entrada", zap.String("message", msg.ID), zap.Error(err))
	}
}
