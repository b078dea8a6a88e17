// Package cli реализует инструмент командной строки Dialer.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с Dialer API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Dialer API. Инкапсулирует HTTP-запросы,
// парсинг ответов ({"data": ...} и {"error": ...}) и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8000")
//	campaigns, err := client.ListCampaigns()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: dialer campaign list --json | jq .
//
// ## Commands
//
//   - campaign: list, create, show, stats, start, pause, delete, analyze, analysis
//   - config
//
// Список обзвона загружается из CSV (ReadContacts): колонки name и phone.
package cli
