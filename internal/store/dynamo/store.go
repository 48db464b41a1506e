// Package dynamo stores calendars in a single DynamoDB table keyed by doctor.
// Slot uniqueness and create idempotency are enforced with conditional writes
// inside one TransactWriteItems call.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/knikodemQ/Appointment-Booking-System/internal/domain"
	"github.com/knikodemQ/Appointment-Booking-System/internal/store"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(context.Context, *dynamodb.TransactWriteItemsInput, ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	DescribeTable(context.Context, *dynamodb.DescribeTableInput, ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

const (
	condNotExists  = "attribute_not_exists(pk)"
	condExists     = "attribute_exists(pk)"
	condSlotHolder = "attribute_not_exists(pk) OR appointmentId = :id"
)

type Store struct {
	client    dynamoAPI
	tableName string
	log       *slog.Logger
}

var _ store.Repository = (*Store)(nil)

// New builds a store backed by the provided DynamoDB client.
func New(client dynamoAPI, tableName string, log *slog.Logger) *Store {
	if client == nil {
		panic("dynamo: client cannot be nil")
	}
	if tableName == "" {
		panic("dynamo: table name cannot be empty")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{client: client, tableName: tableName, log: log.With("component", "dynamo_store")}
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.tableName)})
	if err != nil {
		return fmt.Errorf("dynamo: describe table: %w", err)
	}
	return nil
}

func (s *Store) FetchAvailability(ctx context.Context, doctorID string) ([]domain.AvailabilityWindow, error) {
	var items []availabilityItem
	if err := s.queryPrefix(ctx, doctorID, prefixAvail, &items); err != nil {
		return nil, err
	}
	out := make([]domain.AvailabilityWindow, 0, len(items))
	for _, it := range items {
		w, err := it.toDomain()
		if err != nil {
			return nil, fmt.Errorf("dynamo: decode availability %s: %w", it.ID, err)
		}
		out = append(out, w)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (s *Store) CreateAvailability(ctx context.Context, w domain.AvailabilityWindow) (domain.AvailabilityWindow, error) {
	if err := domain.StampNew(&w.ID, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return domain.AvailabilityWindow{}, err
	}
	if err := s.putNew(ctx, newAvailabilityItem(w)); err != nil {
		return domain.AvailabilityWindow{}, err
	}
	return w, nil
}

func (s *Store) DeleteAvailability(ctx context.Context, doctorID, id string) error {
	return s.deleteExisting(ctx, doctorKey(doctorID), prefixAvail+id)
}

func (s *Store) FetchAbsences(ctx context.Context, doctorID string) ([]domain.Absence, error) {
	var items []absenceItem
	if err := s.queryPrefix(ctx, doctorID, prefixAbsence, &items); err != nil {
		return nil, err
	}
	out := make([]domain.Absence, 0, len(items))
	for _, it := range items {
		a, err := it.toDomain()
		if err != nil {
			return nil, fmt.Errorf("dynamo: decode absence %s: %w", it.ID, err)
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (s *Store) CreateAbsence(ctx context.Context, a domain.Absence) (domain.Absence, error) {
	if err := domain.StampNew(&a.ID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return domain.Absence{}, err
	}
	if err := s.putNew(ctx, newAbsenceItem(a)); err != nil {
		return domain.Absence{}, err
	}
	return a, nil
}

func (s *Store) DeleteAbsence(ctx context.Context, doctorID, id string) error {
	return s.deleteExisting(ctx, doctorKey(doctorID), prefixAbsence+id)
}

// FetchAppointments relies on APPT sort keys ordering by date then time.
func (s *Store) FetchAppointments(ctx context.Context, doctorID string, from, to domain.Date) ([]domain.Appointment, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("pk = :pk AND sk BETWEEN :lo AND :hi"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: doctorKey(doctorID)},
			":lo": &types.AttributeValueMemberS{Value: prefixAppt + from.String()},
			":hi": &types.AttributeValueMemberS{Value: prefixAppt + to.String() + "#~"},
		},
	}
	var items []appointmentItem
	if err := s.query(ctx, input, &items); err != nil {
		return nil, err
	}
	out := make([]domain.Appointment, 0, len(items))
	for _, it := range items {
		a, err := it.toDomain()
		if err != nil {
			return nil, fmt.Errorf("dynamo: decode appointment %s: %w", it.ID, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *Store) GetAppointment(ctx context.Context, id string) (domain.Appointment, error) {
	var idx indexItem
	found, err := s.get(ctx, prefixApptIndex+id, skApptIndex, &idx)
	if err != nil {
		return domain.Appointment{}, err
	}
	if !found {
		return domain.Appointment{}, store.ErrNotFound
	}
	var it appointmentItem
	found, err = s.get(ctx, doctorKey(idx.DoctorID), idx.ApptSK, &it)
	if err != nil {
		return domain.Appointment{}, err
	}
	if !found {
		return domain.Appointment{}, store.ErrNotFound
	}
	return it.toDomain()
}

// CreateAppointment writes the id index, the slot guard and the appointment in one
// transaction. A failed index condition means the id was used before.
func (s *Store) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if err := domain.StampNew(&appt.ID, &appt.CreatedAt, &appt.UpdatedAt); err != nil {
		return domain.Appointment{}, err
	}
	main := newAppointmentItem(appt)

	writes := make([]types.TransactWriteItem, 0, 3)
	idx, err := s.conditionalPut(indexItem{
		PK:       prefixApptIndex + appt.ID,
		SK:       skApptIndex,
		DoctorID: appt.DoctorID,
		ApptSK:   main.SK,
	}, condNotExists)
	if err != nil {
		return domain.Appointment{}, err
	}
	writes = append(writes, idx)

	if !appt.Cancelled {
		guard, err := s.conditionalPut(slotItem{
			PK:            doctorKey(appt.DoctorID),
			SK:            slotSortKey(appt),
			AppointmentID: appt.ID,
		}, condNotExists)
		if err != nil {
			return domain.Appointment{}, err
		}
		writes = append(writes, guard)
	}

	put, err := s.conditionalPut(main, "")
	if err != nil {
		return domain.Appointment{}, err
	}
	writes = append(writes, put)

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: writes})
	if err == nil {
		return appt, nil
	}

	failed := cancelledAt(err)
	switch {
	case failed[0]:
		existing, getErr := s.GetAppointment(ctx, appt.ID)
		if getErr != nil {
			return domain.Appointment{}, getErr
		}
		if !store.SameAppointment(existing, appt) {
			return domain.Appointment{}, store.ErrIdempotencyConflict
		}
		s.log.DebugContext(ctx, "appointment create replayed", "appointment_id", appt.ID)
		return existing, nil
	case failed[1]:
		return domain.Appointment{}, store.ErrSlotTaken
	}
	return domain.Appointment{}, fmt.Errorf("dynamo: create appointment: %w", err)
}

func (s *Store) CancelAppointments(ctx context.Context, doctorID string, ids []string) error {
	now := time.Now().UTC()
	for _, id := range ids {
		appt, err := s.GetAppointment(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if appt.DoctorID != doctorID || appt.Cancelled {
			continue
		}
		appt.Cancelled = true
		appt.UpdatedAt = now

		put, err := s.conditionalPut(newAppointmentItem(appt), condExists)
		if err != nil {
			return err
		}
		_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: []types.TransactWriteItem{put, s.releaseSlot(appt)},
		})
		if err != nil {
			return fmt.Errorf("dynamo: cancel appointment %s: %w", id, err)
		}
	}
	return nil
}

func (s *Store) DeleteAppointment(ctx context.Context, doctorID, id string) error {
	appt, err := s.GetAppointment(ctx, id)
	if err != nil {
		return err
	}
	if appt.DoctorID != doctorID {
		return store.ErrNotFound
	}
	writes := []types.TransactWriteItem{
		{Delete: &types.Delete{TableName: aws.String(s.tableName), Key: key(doctorKey(doctorID), apptSortKey(appt))}},
		{Delete: &types.Delete{TableName: aws.String(s.tableName), Key: key(prefixApptIndex+id, skApptIndex)}},
	}
	if !appt.Cancelled {
		writes = append(writes, s.releaseSlot(appt))
	}
	if _, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: writes}); err != nil {
		return fmt.Errorf("dynamo: delete appointment %s: %w", id, err)
	}
	return nil
}

// releaseSlot deletes the slot guard only while it still belongs to appt.
func (s *Store) releaseSlot(appt domain.Appointment) types.TransactWriteItem {
	return types.TransactWriteItem{Delete: &types.Delete{
		TableName:           aws.String(s.tableName),
		Key:                 key(doctorKey(appt.DoctorID), slotSortKey(appt)),
		ConditionExpression: aws.String(condSlotHolder),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: appt.ID},
		},
	}}
}

func (s *Store) conditionalPut(item any, condition string) (types.TransactWriteItem, error) {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("dynamo: marshal item: %w", err)
	}
	put := &types.Put{TableName: aws.String(s.tableName), Item: av}
	if condition != "" {
		put.ConditionExpression = aws.String(condition)
	}
	return types.TransactWriteItem{Put: put}, nil
}

func (s *Store) putNew(ctx context.Context, item any) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("dynamo: marshal item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String(condNotExists),
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return store.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("dynamo: put item: %w", err)
	}
	return nil
}

func (s *Store) deleteExisting(ctx context.Context, pk, sk string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 key(pk, sk),
		ConditionExpression: aws.String(condExists),
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("dynamo: delete item: %w", err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, pk, sk string, out any) (bool, error) {
	res, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       key(pk, sk),
	})
	if err != nil {
		return false, fmt.Errorf("dynamo: get item: %w", err)
	}
	if res.Item == nil {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(res.Item, out); err != nil {
		return false, fmt.Errorf("dynamo: decode item: %w", err)
	}
	return true, nil
}

func (s *Store) queryPrefix(ctx context.Context, doctorID, prefix string, out any) error {
	return s.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("pk = :pk AND begins_with(sk, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: doctorKey(doctorID)},
			":prefix": &types.AttributeValueMemberS{Value: prefix},
		},
	}, out)
}

func (s *Store) query(ctx context.Context, input *dynamodb.QueryInput, out any) error {
	var all []map[string]types.AttributeValue
	pager := dynamodb.NewQueryPaginator(s.client, input)
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("dynamo: query: %w", err)
		}
		all = append(all, page.Items...)
	}
	if err := attributevalue.UnmarshalListOfMaps(all, out); err != nil {
		return fmt.Errorf("dynamo: decode items: %w", err)
	}
	return nil
}

func key(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPK: &types.AttributeValueMemberS{Value: pk},
		attrSK: &types.AttributeValueMemberS{Value: sk},
	}
}

// cancelledAt reports which transaction items failed their condition.
func cancelledAt(err error) map[int]bool {
	failed := map[int]bool{}
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return failed
	}
	for i, r := range tce.CancellationReasons {
		if aws.ToString(r.Code) == "ConditionalCheckFailed" {
			failed[i] = true
		}
	}
	return failed
}
