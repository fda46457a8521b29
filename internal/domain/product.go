package domain

// Product is a catalog entry. The order pipeline only reads it.
type Product struct {
	ID          string  `dynamodbav:"id"          json:"id"`
	ProductName string  `dynamodbav:"productName" json:"productName"`
	Code        string  `dynamodbav:"code"        json:"code"`
	Price       float64 `dynamodbav:"price"       json:"price"`
	Model       string  `dynamodbav:"model"       json:"model"`
	ProductURL  string  `dynamodbav:"productUrl"  json:"productUrl"`
}

func (p Product) Snapshot() OrderProduct {
	return OrderProduct{Code: p.Code, Price: p.Price}
}
