package dto

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"vip-access-bot/internal/model"
)

// MaxCallbackData is the Bot API limit for inline button payloads, in bytes.
const MaxCallbackData = 64

var (
	ErrUnknownAction   = errors.New("unknown callback action")
	ErrMalformedAction = errors.New("malformed callback payload")
)

// Action is an inline control payload. The set of implementations is closed.
type Action interface {
	Encode() string
	action()
}

type CategoryAction struct {
	CategoryKey string
}

type PlanAction struct {
	PlanID string
}

type PayAction struct {
	Method model.PaymentMethod
}

type ApproveAction struct {
	BuyerID     int64
	CategoryKey string
	PlanID      string
}

type RejectAction struct {
	BuyerID int64
}

func (CategoryAction) action() {}
func (PlanAction) action()     {}
func (PayAction) action()      {}
func (ApproveAction) action()  {}
func (RejectAction) action()   {}

func (a CategoryAction) Encode() string { return "cat:" + a.CategoryKey }
func (a PlanAction) Encode() string     { return "plan:" + a.PlanID }
func (a PayAction) Encode() string      { return "pay:" + string(a.Method) }

func (a ApproveAction) Encode() string {
	return fmt.Sprintf("approve:%d:%s:%s", a.BuyerID, a.CategoryKey, a.PlanID)
}

func (a RejectAction) Encode() string {
	return fmt.Sprintf("reject:%d", a.BuyerID)
}

// Decode parses a payload produced by Encode. Payloads with an unknown tag fail
// with ErrUnknownAction, anything else that does not validate with ErrMalformedAction.
func Decode(data string) (Action, error) {
	if data == "" || len(data) > MaxCallbackData {
		return nil, ErrMalformedAction
	}

	tag, rest, ok := strings.Cut(data, ":")
	if !ok {
		return nil, ErrMalformedAction
	}
	fields := strings.Split(rest, ":")

	switch tag {
	case "cat":
		if len(fields) != 1 || !validToken(fields[0]) {
			return nil, ErrMalformedAction
		}
		return CategoryAction{CategoryKey: fields[0]}, nil
	case "plan":
		if len(fields) != 1 || !validToken(fields[0]) {
			return nil, ErrMalformedAction
		}
		return PlanAction{PlanID: fields[0]}, nil
	case "pay":
		if len(fields) != 1 {
			return nil, ErrMalformedAction
		}
		method := model.PaymentMethod(fields[0])
		if !method.Valid() {
			return nil, ErrMalformedAction
		}
		return PayAction{Method: method}, nil
	case "approve":
		if len(fields) != 3 || !validToken(fields[1]) || !validToken(fields[2]) {
			return nil, ErrMalformedAction
		}
		buyerID, err := parseBuyerID(fields[0])
		if err != nil {
			return nil, err
		}
		return ApproveAction{BuyerID: buyerID, CategoryKey: fields[1], PlanID: fields[2]}, nil
	case "reject":
		if len(fields) != 1 {
			return nil, ErrMalformedAction
		}
		buyerID, err := parseBuyerID(fields[0])
		if err != nil {
			return nil, err
		}
		return RejectAction{BuyerID: buyerID}, nil
	}

	return nil, ErrUnknownAction
}

func parseBuyerID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrMalformedAction
	}
	return id, nil
}

func validToken(s string) bool {
	if s == "" {
		return false
	}
	return !strings.ContainsAny(s, ": \t\n")
}
