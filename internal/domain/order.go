package domain

type PaymentType string

const (
	PaymentCash       PaymentType = "CASH"
	PaymentDebitCard  PaymentType = "DEBIT_CARD"
	PaymentCreditCard PaymentType = "CREDIT_CARD"
)

type ShippingType string

const (
	ShippingEconomic ShippingType = "ECONOMIC"
	ShippingUrgent   ShippingType = "URGENT"
)

type CarrierType string

const (
	CarrierCorreios CarrierType = "CORREIOS"
	CarrierFedex    CarrierType = "FEDEX"
)

// Order is keyed by customer email (pk) and a random order id (sk).
// Product prices are snapshots taken when the order was placed.
type Order struct {
	Email     string         `dynamodbav:"pk"        json:"email"`
	ID        string         `dynamodbav:"sk"        json:"id"`
	CreatedAt int64          `dynamodbav:"createdAt" json:"createdAt"`
	Products  []OrderProduct `dynamodbav:"products"  json:"products"`
	Billing   Billing        `dynamodbav:"billing"   json:"billing"`
	Shipping  Shipping       `dynamodbav:"shipping"  json:"shipping"`
}

type OrderProduct struct {
	Code  string  `dynamodbav:"code"  json:"code"`
	Price float64 `dynamodbav:"price" json:"price"`
}

type Billing struct {
	Payment    PaymentType `dynamodbav:"payment"    json:"payment"`
	TotalPrice float64     `dynamodbav:"totalPrice" json:"totalPrice"`
}

type Shipping struct {
	Type    ShippingType `dynamodbav:"type"    json:"type"`
	Carrier CarrierType  `dynamodbav:"carrier" json:"carrier"`
}

// ProductCodes returns the codes of the order's products in order.
func (o *Order) ProductCodes() []string {
	codes := make([]string, 0, len(o.Products))
	for _, p := range o.Products {
		codes = append(codes, p.Code)
	}
	return codes
}

type CreateOrderRequest struct {
	Email      string      `json:"email"      binding:"required,email"`
	ProductIDs []string    `json:"productIds" binding:"required,min=1"`
	Payment    PaymentType `json:"payment"    binding:"required,oneof=CASH DEBIT_CARD CREDIT_CARD"`
	Shipping   Shipping    `json:"shipping"`
}

type OrderResponse struct {
	Email     string         `json:"email"`
	ID        string         `json:"id"`
	CreatedAt int64          `json:"createdAt"`
	Products  []OrderProduct `json:"products"`
	Billing   Billing        `json:"billing"`
	Shipping  Shipping       `json:"shipping"`
}

func NewOrderResponse(o *Order) OrderResponse {
	products := make([]OrderProduct, len(o.Products))
	copy(products, o.Products)
	return OrderResponse{
		Email:     o.Email,
		ID:        o.ID,
		CreatedAt: o.CreatedAt,
		Products:  products,
		Billing:   o.Billing,
		Shipping:  o.Shipping,
	}
}
