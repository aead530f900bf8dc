package app

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/keymint/keymint/api"
	"github.com/keymint/keymint/internal/domain"
)

func (app *Application) GetWalletHandler(w http.ResponseWriter, r *http.Request) {
	wallet, err := app.walletRepo.GetByUserId(r.Context(), app.contextGetUserId(r))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrWalletNotFound):
			app.notFoundResponseWithErr(w, r, err)
		default:
			app.serverErrorResponse(w, r, err)
		}
		return
	}

	resp := api.WalletResponse{
		Balance:   wallet.Balance,
		UpdatedAt: wallet.UpdatedAt,
	}

	err = app.writeJSON(w, http.StatusOK, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) GetWalletTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	pagination := app.readPagination(r)

	transactions, metadata, err := app.walletRepo.GetTransactions(r.Context(), app.contextGetUserId(r), pagination)
	if err != nil {
		app.serverErrorResponse(w, r, err)
		return
	}

	resp := api.WalletTransactionListResponse{
		Transactions: make([]api.WalletTransaction, 0, len(transactions)),
		Metadata:     toMetadataResponse(metadata),
	}

	for _, transaction := range transactions {
		item := api.WalletTransaction{
			Id:        transaction.ID.String(),
			Type:      string(transaction.Type),
			Amount:    transaction.Amount,
			CreatedAt: transaction.CreatedAt,
		}

		if transaction.OrderID != uuid.Nil {
			orderID := transaction.OrderID.String()
			item.OrderId = &orderID
		}

		if transaction.RefundRef != "" {
			refundRef := transaction.RefundRef
			item.RefundRef = &refundRef
		}

		resp.Transactions = append(resp.Transactions, item)
	}

	err = app.writeJSON(w, http.StatusOK, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}
