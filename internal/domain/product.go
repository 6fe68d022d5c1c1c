package domain

import (
	"errors"
	"time"
)

type Product struct {
	ID          string
	Title       string
	Description string
	Grade       string
	Subject     string
	Category    string
	Price       float64
	PDFFileName string
	Active      bool
	CreatedAt   time.Time
}

func NewProduct(id, title, description, grade, subject, category, pdfFileName string, price float64) (*Product, error) {
	if id == "" || title == "" || pdfFileName == "" || price < 0 {
		return nil, errors.New("invalid product data")
	}
	return &Product{
		ID:          id,
		Title:       title,
		Description: description,
		Grade:       grade,
		Subject:     subject,
		Category:    category,
		Price:       price,
		PDFFileName: pdfFileName,
		Active:      true,
		CreatedAt:   time.Now(),
	}, nil
}
