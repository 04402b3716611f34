package parser

import (
	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/basket-harvester/internal/models"
)

type Parser interface {
	ExtractPage(html string) ([]models.ProductRecord, error)
	Extract(container *goquery.Selection) (models.ProductRecord, error)
}
