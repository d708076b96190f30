package service_test

import (
	"vip-access-bot/internal/dto"
	"vip-access-bot/internal/model"
	"vip-access-bot/internal/service"
)

func selection(buyerID int64, action dto.Action) service.Event {
	return service.Event{
		Kind:       service.EventSelection,
		BuyerID:    buyerID,
		Action:     action,
		CallbackID: "cb",
		MessageID:  1,
	}
}

func dtoCategory(key string) dto.Action { return dto.CategoryAction{CategoryKey: key} }
func dtoPlan(id string) dto.Action      { return dto.PlanAction{PlanID: id} }

func dtoPay(m model.PaymentMethod) dto.Action { return dto.PayAction{Method: m} }
