// Package analysis извлекает структурированные данные из транскриптов
// завершённых звонков.
//
// Pipeline.Trigger переводит анализ кампании в processing (повторный
// вызов во время работы возвращает already_processing) и запускает
// фоновый прогон:
//
//  1. Выбирает звонки с транскриптом и analysis_status = pending.
//  2. Нормализует транскрипты (NormalizeTranscript).
//  3. Режет их на пачки по BatchSize (по умолчанию 5).
//  4. Отправляет каждую пачку в Service и сохраняет результаты.
//
// Ошибка пачки (ErrTransient) логируется и пропускается, остальные
// пачки продолжаются. Ошибка вне цикла пачек (ErrFatal) переводит
// анализ кампании в failed, иначе прогон заканчивается completed.
//
// GeminiService — реализация Service поверх Gemini API
// (google.golang.org/genai) в режиме JSON-ответа.
package analysis
