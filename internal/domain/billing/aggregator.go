package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hms/hms/internal/platform/realtime"
)

// Aggregator builds inpatient bills from an admission's recorded services
// and medication administrations.
type Aggregator struct {
	src             AdmissionSource
	bills           BillRepository
	items           BillItemRepository
	tx              TxRunner
	publisher       realtime.Publisher
	defaultMedPrice decimal.Decimal
	logger          zerolog.Logger
}

// SetPublisher attaches a change publisher for finalized bills.
func (a *Aggregator) SetPublisher(p realtime.Publisher) {
	a.publisher = p
}

func NewAggregator(src AdmissionSource, bills BillRepository, items BillItemRepository, tx TxRunner, defaultMedPrice decimal.Decimal, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		src:             src,
		bills:           bills,
		items:           items,
		tx:              tx,
		defaultMedPrice: defaultMedPrice,
		logger:          logger.With().Str("component", "billing_aggregator").Logger(),
	}
}

// ComputeBill aggregates an admission's billable lines into a proposed bill
// without writing anything. Services are priced at the rate recorded when
// they were added; medications at the price recorded at administration time,
// falling back to the configured flat default when none was recorded.
func (a *Aggregator) ComputeBill(ctx context.Context, admissionID uuid.UUID) (*ProposedBill, error) {
	patientID, err := a.src.AdmissionPatient(ctx, admissionID)
	if err != nil {
		return nil, err
	}

	services, err := a.src.ServiceLines(ctx, admissionID)
	if err != nil {
		return nil, fmt.Errorf("load service lines: %w", err)
	}
	medications, err := a.src.MedicationLines(ctx, admissionID)
	if err != nil {
		return nil, fmt.Errorf("load medication lines: %w", err)
	}

	proposed := &ProposedBill{
		AdmissionID: admissionID,
		PatientID:   patientID,
		Total:       decimal.Zero,
	}
	for _, sl := range services {
		svcID := sl.ServiceID
		proposed.Items = append(proposed.Items, LineItem{
			ServiceID:   &svcID,
			Description: sl.Name,
			Quantity:    sl.Quantity,
			UnitPrice:   sl.UnitPrice,
			TotalPrice:  sl.TotalPrice,
		})
		proposed.Total = proposed.Total.Add(sl.TotalPrice)
	}
	for _, ml := range medications {
		unit := a.defaultMedPrice
		if ml.UnitPrice != nil {
			unit = *ml.UnitPrice
		}
		total := unit.Mul(decimal.NewFromInt(int64(ml.Quantity)))
		medID := ml.MedicationID
		proposed.Items = append(proposed.Items, LineItem{
			MedicationID: &medID,
			Description:  ml.Name,
			Quantity:     ml.Quantity,
			UnitPrice:    unit,
			TotalPrice:   total,
		})
		proposed.Total = proposed.Total.Add(total)
	}
	return proposed, nil
}

// Finalize persists the aggregated bill and its line items and marks the
// admission as billed, all in one transaction. The unique index on
// bills(admission_id) is the duplicate gate: a second finalization fails
// with ErrDuplicateBill no matter how the requests interleave.
func (a *Aggregator) Finalize(ctx context.Context, admissionID uuid.UUID, createdBy *string) (*Bill, error) {
	proposed, err := a.ComputeBill(ctx, admissionID)
	if err != nil {
		return nil, err
	}
	if len(proposed.Items) == 0 {
		return nil, fmt.Errorf("admission has no billable items")
	}

	admID := admissionID
	bill := &Bill{
		ID:          uuid.New(),
		PatientID:   proposed.PatientID,
		AdmissionID: &admID,
		Amount:      proposed.Total,
		AmountPaid:  decimal.Zero,
		Description: "Inpatient admission charges",
		BillType:    BillTypeInpatient,
		CreatedBy:   createdBy,
	}

	err = a.tx.RunTx(ctx, func(ctx context.Context) error {
		if err := a.bills.Create(ctx, bill); err != nil {
			return err
		}
		items := make([]*BillItem, 0, len(proposed.Items))
		for _, li := range proposed.Items {
			items = append(items, &BillItem{
				ID:           uuid.New(),
				BillID:       bill.ID,
				ServiceID:    li.ServiceID,
				MedicationID: li.MedicationID,
				Description:  li.Description,
				Quantity:     li.Quantity,
				UnitPrice:    li.UnitPrice,
				TotalPrice:   li.TotalPrice,
			})
		}
		if err := a.items.CreateBatch(ctx, items); err != nil {
			return err
		}
		return a.src.AcknowledgeBilling(ctx, admissionID)
	})
	if err != nil {
		return nil, err
	}

	a.logger.Info().
		Str("bill_id", bill.ID.String()).
		Str("admission_id", admissionID.String()).
		Str("amount", bill.Amount.String()).
		Int("items", len(proposed.Items)).
		Msg("inpatient bill finalized")
	if a.publisher != nil {
		a.publisher.Publish(ctx, realtime.ChangeEvent{Table: "bills", Op: realtime.OpInsert, RowID: bill.ID.String()})
		a.publisher.Publish(ctx, realtime.ChangeEvent{Table: "admissions", Op: realtime.OpUpdate, RowID: admissionID.String()})
	}
	return bill, nil
}
