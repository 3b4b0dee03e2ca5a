package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"go.uber.org/zap"

	"optiondesk/internal/alert"
	"optiondesk/internal/market"
	"optiondesk/internal/models"
	"optiondesk/internal/repository"
)

const keyStripes = 32

// EntryGate decides whether a direction may open a position right now.
type EntryGate interface {
	Allow(ctx context.Context, direction models.Direction) (bool, error)
}

// Switches exposes the runtime feature flags the pipeline consults.
type Switches interface {
	AutoEntry(ctx context.Context) bool
}

type Options struct {
	Workers          int
	QueueSize        int
	JobTimeout       time.Duration
	StopLossFraction decimal.Decimal
	OTMSteps         int
}

// Pipeline turns normalized alert units into persisted trade records on a
// bounded worker pool. Submit never blocks the webhook handler: a full queue
// sheds the unit and reports it dropped.
type Pipeline struct {
	Repo     repository.Repository
	Gateway  market.Gateway
	Gate     EntryGate
	Switches Switches
	Logger   *zap.Logger

	opts  Options
	queue chan alert.Unit
	locks [keyStripes]sync.Mutex

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

func NewPipeline(repo repository.Repository, gateway market.Gateway, gate EntryGate, switches Switches, logger *zap.Logger, opts Options) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.OTMSteps <= 0 {
		opts.OTMSteps = 1
	}
	return &Pipeline{
		Repo:     repo,
		Gateway:  gateway,
		Gate:     gate,
		Switches: switches,
		Logger:   logger,
		opts:     opts,
		queue:    make(chan alert.Unit, opts.QueueSize),
		done:     make(chan struct{}),
	}
}

// Start launches the worker pool. Workers drain the queue until Stop.
func (p *Pipeline) Start(ctx context.Context) {
	if p == nil {
		return
	}
	p.startOnce.Do(func() {
		for i := 0; i < p.opts.Workers; i++ {
			p.wg.Add(1)
			go p.worker(ctx)
		}
	})
}

// Stop closes the intake and waits for in-flight jobs to finish.
func (p *Pipeline) Stop() {
	if p == nil {
		return
	}
	p.stopOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
	})
}

// Submit enqueues one unit. It reports false when the queue is full or the
// pipeline is stopping; the caller counts the drop, nothing blocks.
func (p *Pipeline) Submit(unit alert.Unit) bool {
	if p == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.queue <- unit:
		return true
	default:
		return false
	}
}

func (p *Pipeline) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			// drain what is already queued before exiting
			for {
				select {
				case unit := <-p.queue:
					p.handle(ctx, unit)
				default:
					return
				}
			}
		case unit := <-p.queue:
			p.handle(ctx, unit)
		}
	}
}

func (p *Pipeline) handle(ctx context.Context, unit alert.Unit) {
	jobCtx := ctx
	var cancel context.CancelFunc
	if p.opts.JobTimeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, p.opts.JobTimeout)
		defer cancel()
	}

	mu := p.lockFor(unit)
	mu.Lock()
	defer mu.Unlock()

	if err := p.Process(jobCtx, unit); err != nil {
		p.Logger.Error("enrichment failed",
			zap.String("symbol", unit.Symbol),
			zap.String("slot", unit.Slot),
			zap.String("direction", string(unit.Direction)),
			zap.Error(err))
	}
}

func (p *Pipeline) lockFor(unit alert.Unit) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(unit.Symbol))
	h.Write([]byte{'|'})
	h.Write([]byte(unit.Slot))
	h.Write([]byte{'|'})
	h.Write([]byte(unit.Direction))
	h.Write([]byte{'|'})
	h.Write([]byte(unit.TradeDate))
	return &p.locks[h.Sum32()%keyStripes]
}

// Process runs the enrichment ladder for one unit:
//  1. stock quote, falling back to the trigger price when the feed is down
//  2. one-step OTM contract resolution for the direction's leg
//  3. option LTP, plus the candle history blob
//  4. index trend gate verdict: an admitted alert gets the simulated buy
//     price, stop loss and sizing; a refused one is kept as no_entry with
//     its resolved leg but no buy
//
// The record is written exactly once through the idempotent create; when
// that write fails the minimal alert row is saved instead so the alert
// survives in degraded form.
func (p *Pipeline) Process(ctx context.Context, unit alert.Unit) error {
	record := &models.TradeRecord{
		Symbol:       unit.Symbol,
		Slot:         unit.Slot,
		Direction:    unit.Direction,
		TradeDate:    unit.TradeDate,
		TriggerPrice: unit.TriggerPrice,
		AlertAt:      unit.AlertAt,
		ScanName:     unit.ScanName,
		ScanURL:      unit.ScanURL,
		Status:       models.StatusAlertReceived,
	}

	stockLTP := unit.TriggerPrice
	quote, err := p.Gateway.Quote(ctx, unit.Symbol)
	if err != nil {
		p.Logger.Warn("stock quote unavailable, using trigger price",
			zap.String("symbol", unit.Symbol), zap.Error(err))
	} else {
		stockLTP = quote.LTP
		record.StockVWAP = ptr(quote.VWAP)
		record.VWAPObservedAt = &quote.ObservedAt
	}
	record.StockLTP = ptr(stockLTP)

	allowed := true
	if p.Gate != nil {
		var gateErr error
		allowed, gateErr = p.Gate.Allow(ctx, unit.Direction)
		if gateErr != nil {
			// a broken gate must not cost the alert its record; admit it
			p.Logger.Warn("entry gate check failed, admitting alert",
				zap.String("symbol", unit.Symbol), zap.Error(gateErr))
			allowed = true
		}
	}
	autoEntry := p.Switches == nil || p.Switches.AutoEntry(ctx)

	switch {
	case !allowed:
		// the gate only withholds the entry; the option leg is still
		// resolved so the record stays inspectable
		p.enrichOption(ctx, unit, record, false)
		if record.Status != models.StatusEnrichmentFailed {
			record.Status = models.StatusNoEntry
		}
	case !autoEntry:
		// fully enriched below, but no simulated entry is taken
		p.enrichOption(ctx, unit, record, false)
	default:
		p.enrichOption(ctx, unit, record, true)
	}

	created, err := p.Repo.CreateTradeIfAbsent(ctx, record)
	if err != nil {
		p.Logger.Error("full trade save failed, falling back to minimal record",
			zap.String("symbol", unit.Symbol), zap.Error(err))
		return p.Repo.SaveTradeMinimal(ctx, record)
	}
	if !created {
		p.Logger.Debug("duplicate alert ignored",
			zap.String("symbol", unit.Symbol),
			zap.String("slot", unit.Slot),
			zap.String("direction", string(unit.Direction)))
		return nil
	}

	p.Logger.Info("alert processed",
		zap.String("symbol", unit.Symbol),
		zap.String("slot", unit.Slot),
		zap.String("direction", string(unit.Direction)),
		zap.String("status", record.Status))
	return nil
}

// enrichOption resolves the OTM contract and, when enter is set, records the
// simulated buy. Contract or LTP failures mark the record enrichment_failed;
// the candle blob is best-effort only.
func (p *Pipeline) enrichOption(ctx context.Context, unit alert.Unit, record *models.TradeRecord, enter bool) {
	contract, err := p.Gateway.FindOTMOption(ctx, unit.Symbol, unit.Direction.OptionType(), p.opts.OTMSteps)
	if err != nil {
		if !errors.Is(err, market.ErrNoContract) {
			p.Logger.Warn("option contract lookup failed",
				zap.String("symbol", unit.Symbol), zap.Error(err))
		}
		record.Status = models.StatusEnrichmentFailed
		return
	}
	optType := unit.Direction.OptionType()
	record.OptionSymbol = &contract.Symbol
	record.OptionType = &optType
	record.InstrumentKey = &contract.InstrumentKey
	record.LotSize = contract.LotSize
	record.Quantity = contract.LotSize

	ltp, err := p.Gateway.OptionLTP(ctx, contract.InstrumentKey)
	if err != nil {
		p.Logger.Warn("option ltp fetch failed",
			zap.String("instrument_key", contract.InstrumentKey), zap.Error(err))
		record.Status = models.StatusEnrichmentFailed
		return
	}
	record.OptionLTP = ptr(ltp)

	if candles, err := p.Gateway.OptionCandles(ctx, contract.InstrumentKey); err == nil {
		if blob, err := json.Marshal(candles); err == nil {
			record.OptionCandles = datatypes.JSON(blob)
		}
	}

	if enter {
		stop := ltp.Mul(decimal.NewFromInt(1).Sub(p.opts.StopLossFraction))
		record.BuyPrice = ptr(ltp)
		record.StopLoss = ptr(stop)
		record.Status = models.StatusBought
	}
}

func ptr(d decimal.Decimal) *decimal.Decimal { return &d }
