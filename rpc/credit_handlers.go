package rpc

import (
	"encoding/json"
	"math/big"
	"net/http"

	"creditnet/crypto"
	"creditnet/native/credit"
)

type creditAmountParams struct {
	From   string `json:"from"`
	Amount string `json:"amount"`
}

type creditBorrowParams struct {
	Borrower string `json:"borrower"`
	Assets   string `json:"assets,omitempty"`
	Shares   string `json:"shares,omitempty"`
}

type creditLineParams struct {
	Caller        string `json:"caller"`
	Borrower      string `json:"borrower"`
	CreditLimit   string `json:"creditLimit"`
	RatePerSecond string `json:"ratePerSecond"`
}

type creditPostingParams struct {
	Borrower      string `json:"borrower"`
	Bps           uint64 `json:"bps"`
	EndingBalance string `json:"endingBalance"`
}

type creditCloseCycleParams struct {
	Caller   string                `json:"caller"`
	EndDate  int64                 `json:"endDate"`
	Postings []creditPostingParams `json:"postings"`
}

type creditPostObligationsParams struct {
	Caller   string                `json:"caller"`
	Postings []creditPostingParams `json:"postings"`
}

type creditAccrueParams struct {
	Borrower string `json:"borrower"`
}

type creditAccrueBatchParams struct {
	Borrowers []string `json:"borrowers"`
}

type creditSettleParams struct {
	Caller      string `json:"caller"`
	Borrower    string `json:"borrower"`
	CoverAmount string `json:"coverAmount,omitempty"`
}

type creditAddressParams struct {
	Address string `json:"address"`
}

type creditTxResult struct {
	TxHash string `json:"txHash"`
	Amount string `json:"amount,omitempty"`
}

type creditCycleResult struct {
	CycleID uint64 `json:"cycleId"`
}

type creditAccrueResult struct {
	Accrued bool `json:"accrued"`
}

type creditMarketResult struct {
	TotalSupplyAssets   string `json:"totalSupplyAssets"`
	TotalSupplyShares   string `json:"totalSupplyShares"`
	TotalBorrowAssets   string `json:"totalBorrowAssets"`
	TotalBorrowShares   string `json:"totalBorrowShares"`
	LastUpdate          int64  `json:"lastUpdate"`
	CreatedAt           int64  `json:"createdAt"`
	FeeRateBps          uint64 `json:"feeRateBps"`
	TotalMarkdownAmount string `json:"totalMarkdownAmount"`
}

type creditPositionResult struct {
	Address      string `json:"address"`
	SupplyShares string `json:"supplyShares"`
	BorrowShares string `json:"borrowShares"`
	CreditLimit  string `json:"creditLimit"`
	DebtValue    string `json:"debtValue"`
}

type creditObligationResult struct {
	CycleID          uint64 `json:"cycleId"`
	AmountDue        string `json:"amountDue"`
	EndingBalance    string `json:"endingBalance"`
	DefaultStartTime int64  `json:"defaultStartTime,omitempty"`
}

type creditStatusResult struct {
	Address string `json:"address"`
	Status  string `json:"status"`
}

func (s *Server) handleCreditSupply(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addr, amount, ok := s.parseAmountParams(w, req)
	if !ok {
		return
	}
	txHash, minted, moduleErr := s.credit.Supply(addr, amount)
	if moduleErr != nil {
		s.metrics.IncRPCError(req.Method)
		writeError(w, moduleErr.HTTPStatus, req.ID, moduleErr.Code, moduleErr.Message, moduleErr.Data)
		return
	}
	writeResult(w, req.ID, creditTxResult{TxHash: txHash, Amount: minted.String()})
}

func (s *Server) handleCreditWithdraw(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addr, shares, ok := s.parseAmountParams(w, req)
	if !ok {
		return
	}
	txHash, redeemed, moduleErr := s.credit.Withdraw(addr, shares)
	if moduleErr != nil {
		s.metrics.IncRPCError(req.Method)
		writeError(w, moduleErr.HTTPStatus, req.ID, moduleErr.Code, moduleErr.Message, moduleErr.Data)
		return
	}
	writeResult(w, req.ID, creditTxResult{TxHash: txHash, Amount: redeemed.String()})
}

func (s *Server) handleCreditBorrow(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected parameter object", nil)
		return
	}
	var params creditBorrowParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	borrower, err := decodeAddress(params.Borrower)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid borrower", err.Error())
		return
	}
	assets, err := parseOptionalAmount(params.Assets)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid assets", err.Error())
		return
	}
	shares, err := parseOptionalAmount(params.Shares)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid shares", err.Error())
		return
	}
	txHash, drawn, moduleErr := s.credit.Borrow(borrower, assets, shares)
	if moduleErr != nil {
		s.metrics.IncRPCError(req.Method)
		writeError(w, moduleErr.HTTPStatus, req.ID, moduleErr.Code, moduleErr.Message, moduleErr.Data)
		return
	}
	writeResult(w, req.ID, creditTxResult{TxHash: txHash, Amount: drawn.String()})
}

func (s *Server) handleCreditRepay(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addr, amount, ok := s.parseAmountParams(w, req)
	if !ok {
		return
	}
	txHash, repaid, moduleErr := s.credit.Repay(addr, amount)
	if moduleErr != nil {
		s.metrics.IncRPCError(req.Method)
		writeError(w, moduleErr.HTTPStatus, req.ID, moduleErr.Code, moduleErr.Message, moduleErr.Data)
		return
	}
	writeResult(w, req.ID, creditTxResult{TxHash: txHash, Amount: repaid.String()})
}

func (s *Server) handleCreditSetCreditLine(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected parameter object", nil)
		return
	}
	var params creditLineParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	caller, err := decodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	borrower, err := decodeAddress(params.Borrower)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid borrower", err.Error())
		return
	}
	creditLimit, err := parseAmount(params.CreditLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid creditLimit", err.Error())
		return
	}
	rate, err := parseAmount(params.RatePerSecond)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid ratePerSecond", err.Error())
		return
	}
	txHash, moduleErr := s.credit.SetCreditLine(caller, borrower, creditLimit, rate)
	if moduleErr != nil {
		s.metrics.IncRPCError(req.Method)
		writeError(w, moduleErr.HTTPStatus, req.ID, moduleErr.Code, moduleErr.Message, moduleErr.Data)
		return
	}
	writeResult(w, req.ID, creditTxResult{TxHash: txHash})
}

func (s *Server) handleCreditCloseCycle(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected parameter object", nil)
		return
	}
	var params creditCloseCycleParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	caller, err := decodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	postings, perr := decodePostings(params.Postings)
	if perr != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid postings", perr.Error())
		return
	}
	cycleID, moduleErr := s.credit.CloseCycle(caller, params.EndDate, postings)
	if moduleErr != nil {
		s.metrics.IncRPCError(req.Method)
		writeError(w, moduleErr.HTTPStatus, req.ID, moduleErr.Code, moduleErr.Message, moduleErr.Data)
		return
	}
	writeResult(w, req.ID, creditCycleResult{CycleID: cycleID})
}

func (s *Server) handleCreditPostObligations(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected parameter object", nil)
		return
	}
	var params creditPostObligationsParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	caller, err := decodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	postings, perr := decodePostings(params.Postings)
	if perr != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid postings", perr.Error())
		return
	}
	cycleID, moduleErr := s.credit.PostObligations(caller, postings)
	if moduleErr != nil {
		s.metrics.IncRPCError(req.Method)
		writeError(w, moduleErr.HTTPStatus, req.ID, moduleErr.Code, moduleErr.Message, moduleErr.Data)
		return
	}
	writeResult(w, req.ID, creditCycleResult{CycleID: cycleID})
}

func (s *Server) handleCreditAccruePremium(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected parameter object", nil)
		return
	}
	var params creditAccrueParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	borrower, err := decodeAddress(params.Borrower)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid borrower", err.Error())
		return
	}
	if moduleErr := s.credit.AccruePremium(borrower); moduleErr != nil {
		s.metrics.IncRPCError(req.Method)
		writeError(w, moduleErr.HTTPStatus, req.ID, moduleErr.Code, moduleErr.Message, moduleErr.Data)
		return
	}
	writeResult(w, req.ID, creditAccrueResult{Accrued: true})
}

func (s *Server) handleCreditAccruePremiumBatch(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected parameter object", nil)
		return
	}
	var params creditAccrueBatchParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	borrowers := make([]crypto.Address, 0, len(params.Borrowers))
	for _, raw := range params.Borrowers {
		addr, err := decodeAddress(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid borrower", err.Error())
			return
		}
		borrowers = append(borrowers, addr)
	}
	if moduleErr := s.credit.AccruePremiumBatch(borrowers); moduleErr != nil {
		s.metrics.IncRPCError(req.Method)
		writeError(w, moduleErr.HTTPStatus, req.ID, moduleErr.Code, moduleErr.Message, moduleErr.Data)
		return
	}
	writeResult(w, req.ID, creditAccrueResult{Accrued: true})
}

func (s *Server) handleCreditSettleAccount(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected parameter object", nil)
		return
	}
	var params creditSettleParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	caller, err := decodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	borrower, err := decodeAddress(params.Borrower)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid borrower", err.Error())
		return
	}
	cover, err := parseOptionalAmount(params.CoverAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid coverAmount", err.Error())
		return
	}
	txHash, writeOff, moduleErr := s.credit.SettleAccount(caller, borrower, cover)
	if moduleErr != nil {
		s.metrics.IncRPCError(req.Method)
		writeError(w, moduleErr.HTTPStatus, req.ID, moduleErr.Code, moduleErr.Message, moduleErr.Data)
		return
	}
	writeResult(w, req.ID, creditTxResult{TxHash: txHash, Amount: writeOff.String()})
}

func (s *Server) handleCreditGetMarket(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	market, moduleErr := s.credit.GetMarket()
	if moduleErr != nil {
		s.metrics.IncRPCError(req.Method)
		writeError(w, moduleErr.HTTPStatus, req.ID, moduleErr.Code, moduleErr.Message, moduleErr.Data)
		return
	}
	writeResult(w, req.ID, creditMarketResult{
		TotalSupplyAssets:   bigString(market.TotalSupplyAssets),
		TotalSupplyShares:   bigString(market.TotalSupplyShares),
		TotalBorrowAssets:   bigString(market.TotalBorrowAssets),
		TotalBorrowShares:   bigString(market.TotalBorrowShares),
		LastUpdate:          market.LastUpdate,
		CreatedAt:           market.CreatedAt,
		FeeRateBps:          market.FeeRateBps,
		TotalMarkdownAmount: bigString(market.TotalMarkdownAmount),
	})
}

func (s *Server) handleCreditGetPosition(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addr, ok := s.parseAddressParam(w, req)
	if !ok {
		return
	}
	position, debt, moduleErr := s.credit.GetPosition(addr)
	if moduleErr != nil {
		s.metrics.IncRPCError(req.Method)
		writeError(w, moduleErr.HTTPStatus, req.ID, moduleErr.Code, moduleErr.Message, moduleErr.Data)
		return
	}
	writeResult(w, req.ID, creditPositionResult{
		Address:      position.Address.String(),
		SupplyShares: bigString(position.SupplyShares),
		BorrowShares: bigString(position.BorrowShares),
		CreditLimit:  bigString(position.CreditLimit),
		DebtValue:    bigString(debt),
	})
}

func (s *Server) handleCreditGetObligation(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addr, ok := s.parseAddressParam(w, req)
	if !ok {
		return
	}
	obligation, moduleErr := s.credit.GetObligation(addr)
	if moduleErr != nil {
		s.metrics.IncRPCError(req.Method)
		writeError(w, moduleErr.HTTPStatus, req.ID, moduleErr.Code, moduleErr.Message, moduleErr.Data)
		return
	}
	if obligation == nil {
		writeResult(w, req.ID, nil)
		return
	}
	writeResult(w, req.ID, creditObligationResult{
		CycleID:          obligation.CycleID,
		AmountDue:        bigString(obligation.AmountDue),
		EndingBalance:    bigString(obligation.EndingBalance),
		DefaultStartTime: obligation.DefaultStartTime,
	})
}

func (s *Server) handleCreditGetStatus(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addr, ok := s.parseAddressParam(w, req)
	if !ok {
		return
	}
	status, moduleErr := s.credit.GetStatus(addr)
	if moduleErr != nil {
		s.metrics.IncRPCError(req.Method)
		writeError(w, moduleErr.HTTPStatus, req.ID, moduleErr.Code, moduleErr.Message, moduleErr.Data)
		return
	}
	writeResult(w, req.ID, creditStatusResult{Address: addr.String(), Status: status.String()})
}

func (s *Server) parseAmountParams(w http.ResponseWriter, req *RPCRequest) (crypto.Address, *big.Int, bool) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected parameter object", nil)
		return crypto.Address{}, nil, false
	}
	var params creditAmountParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return crypto.Address{}, nil, false
	}
	addr, err := decodeAddress(params.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid from", err.Error())
		return crypto.Address{}, nil, false
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return crypto.Address{}, nil, false
	}
	return addr, amount, true
}

func (s *Server) parseAddressParam(w http.ResponseWriter, req *RPCRequest) (crypto.Address, bool) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected address parameter", nil)
		return crypto.Address{}, false
	}
	var addressParam string
	if err := json.Unmarshal(req.Params[0], &addressParam); err != nil {
		var wrapped creditAddressParams
		if err := json.Unmarshal(req.Params[0], &wrapped); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address parameter", err.Error())
			return crypto.Address{}, false
		}
		addressParam = wrapped.Address
	}
	addr, err := decodeAddress(addressParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return crypto.Address{}, false
	}
	return addr, true
}

func decodePostings(raw []creditPostingParams) ([]credit.ObligationPosting, error) {
	borrowers := make([]crypto.Address, 0, len(raw))
	bps := make([]uint64, 0, len(raw))
	balances := make([]*big.Int, 0, len(raw))
	for _, posting := range raw {
		addr, err := decodeAddress(posting.Borrower)
		if err != nil {
			return nil, err
		}
		balance, err := parseAmount(posting.EndingBalance)
		if err != nil {
			return nil, err
		}
		borrowers = append(borrowers, addr)
		bps = append(bps, posting.Bps)
		balances = append(balances, balance)
	}
	return credit.BuildPostings(borrowers, bps, balances)
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
