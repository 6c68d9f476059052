// Package view turns catalog data into chat messages with inline keyboards.
// Everything here is pure; texts come from the shop templates.
package view

import (
	"strconv"

	"github.com/shopspring/decimal"

	"shopbot/internal/adapters/catalog"
	"shopbot/internal/domain/callback"
	"shopbot/pkg/telegram"
	"shopbot/pkg/templates"
)

// Quantities offered on the product card, in kg
var Quantities = []int{5, 10, 15}

const (
	labelCart     = "Моя корзина"
	labelBack     = "Назад"
	labelCheckout = "Оплата"
	labelAdd      = "Добавить в корзину"
	labelRemove   = "Убрать товар: "
	labelKg       = " кг"
)

// View is one outgoing message. With Image set, Text is the photo caption.
type View struct {
	Text     string
	Image    []byte
	Keyboard telegram.InlineKeyboardMarkup
}

// HasImage reports whether the view is sent as a photo
func (v View) HasImage() bool {
	return len(v.Image) > 0
}

// Builder renders views from a template registry
type Builder struct {
	templates *templates.Registry
}

// NewBuilder creates a builder over reg
func NewBuilder(reg *templates.Registry) *Builder {
	return &Builder{templates: reg}
}

// Menu lists products one per row followed by the cart button
func (b *Builder) Menu(products []catalog.Product) View {
	rows := make([][]telegram.InlineKeyboardButton, 0, len(products)+1)
	for _, p := range products {
		rows = append(rows, button(p.Name, callback.Product(p.ID)))
	}
	rows = append(rows, button(labelCart, callback.Cart()))

	return View{
		Text:     b.render("shop/menu", nil),
		Keyboard: telegram.NewInlineKeyboardMarkup(rows...),
	}
}

type cartLine struct {
	Name     string
	Quantity int
	Cost     string
}

// Cart shows every line item with its cost, a remove button per item, then
// checkout and back. An empty cart only offers back.
func (b *Builder) Cart(items []catalog.LineItem) View {
	if len(items) == 0 {
		return View{
			Text:     b.render("shop/cart_empty", nil),
			Keyboard: telegram.NewInlineKeyboardMarkup(button(labelBack, callback.Back())),
		}
	}

	lines := make([]cartLine, 0, len(items))
	rows := make([][]telegram.InlineKeyboardButton, 0, len(items)+2)
	total := decimal.Zero

	for _, item := range items {
		cost := item.Cost()
		total = total.Add(cost)
		lines = append(lines, cartLine{Name: item.Name, Quantity: item.Quantity, Cost: cost.String()})
		rows = append(rows, button(labelRemove+item.Name, callback.Delete(item.ID)))
	}
	rows = append(rows,
		button(labelCheckout, callback.Buy()),
		button(labelBack, callback.Back()),
	)

	return View{
		Text: b.render("shop/cart", map[string]any{
			"Items": lines,
			"Total": total.String(),
		}),
		Keyboard: telegram.NewInlineKeyboardMarkup(rows...),
	}
}

// Product is the product card: description, thumbnail, quantity choice, add and back
func (b *Builder) Product(p catalog.Product, image []byte) View {
	quantityRow := make([]telegram.InlineKeyboardButton, 0, len(Quantities))
	for _, n := range Quantities {
		quantityRow = append(quantityRow, telegram.NewInlineKeyboardButtonData(
			strconv.Itoa(n)+labelKg,
			callback.Encode(callback.Quantity(n)),
		))
	}

	price := ""
	if !p.Price.IsZero() {
		price = p.Price.String()
	}

	return View{
		Text: b.render("shop/product", map[string]any{
			"Name":        p.Name,
			"Price":       price,
			"Description": p.Description,
		}),
		Image: image,
		Keyboard: telegram.NewInlineKeyboardMarkup(
			quantityRow,
			button(labelAdd, callback.Add(p.ID)),
			button(labelBack, callback.Back()),
		),
	}
}

// EmailPrompt asks for the checkout email
func (b *Builder) EmailPrompt() View {
	return View{Text: b.render("shop/email_prompt", nil)}
}

// EmailInvalid re-prompts after text that is not an address
func (b *Builder) EmailInvalid(input string) View {
	return View{Text: b.render("shop/email_invalid", map[string]any{"Input": input})}
}

// EmailSaved confirms the stored address
func (b *Builder) EmailSaved(email string) View {
	return View{Text: b.render("shop/email_saved", map[string]any{"Email": email})}
}

// QuantitySelected is the toast after a quantity button
func (b *Builder) QuantitySelected(n int) string {
	return b.render("shop/quantity_selected", map[string]any{"Quantity": n})
}

// PickQuantityFirst is the toast for add without a chosen quantity
func (b *Builder) PickQuantityFirst() string {
	return b.render("shop/pick_quantity", nil)
}

// ItemAdded is the toast after a successful add
func (b *Builder) ItemAdded(n int) string {
	return b.render("shop/item_added", map[string]any{"Quantity": n})
}

// Failure is the generic notice for a failed turn
func (b *Builder) Failure() View {
	return View{Text: b.render("shop/failure", nil)}
}

// render panics on a template error: templates are embedded and covered by
// tests, so a failure here is a programming error
func (b *Builder) render(id string, data any) string {
	text, err := b.templates.Render(id, data)
	if err != nil {
		panic(err)
	}
	return text
}

func button(text string, p callback.Payload) []telegram.InlineKeyboardButton {
	return telegram.NewInlineKeyboardRow(telegram.NewInlineKeyboardButtonData(text, callback.Encode(p)))
}
